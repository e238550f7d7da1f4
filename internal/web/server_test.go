package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/impact"
	"github.com/zheng/sprocmap/internal/storage"
	"github.com/zheng/sprocmap/internal/testutil"
)

func setupServer(t *testing.T) (http.Handler, int64) {
	t.Helper()
	dir := testutil.WriteTree(t, `
-- A.sql --
exec B
exec C
-- B.sql --
exec dbo.A
exec C
-- C.sql --
select dbo.fnFoo(1)
`)
	root, err := graph.NewBuilder(nil).Build(context.Background(), filepath.Join(dir, "A.sql"))
	require.NoError(t, err)

	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runID, err := db.SaveTree(storage.RunKindFunctions, dir, root)
	require.NoError(t, err)
	require.NoError(t, db.SaveFunctions(runID, []string{"dbo.fnFoo"}))

	return NewServer(db, 0, nil).Handler(), runID
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleRuns(t *testing.T) {
	h, runID := setupServer(t)

	rec := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var runs []storage.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, storage.RunKindFunctions, runs[0].Kind)
	assert.Equal(t, 1, runs[0].Functions)
}

func TestHandleRun(t *testing.T) {
	h, _ := setupServer(t)

	rec := get(t, h, "/api/runs/1")
	require.Equal(t, http.StatusOK, rec.Code)

	var data RunData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "A.sql", data.Tree.Name())
	assert.Equal(t, []string{"dbo.fnFoo"}, data.Functions)
	require.Len(t, data.Tree.Children, 2)
	closure := data.Tree.Children[0].Children[0]
	assert.True(t, closure.CycleClosure)
	assert.Equal(t, "A.sql", closure.ClosesTo)
}

func TestHandleGraph(t *testing.T) {
	h, _ := setupServer(t)

	rec := get(t, h, "/api/runs/1/graph")
	require.Equal(t, http.StatusOK, rec.Code)

	var data GraphData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, []string{"A.sql", "B.sql", "C.sql"}, testutil.Names(data.Nodes, func(n NodeData) string { return n.ID }))
	assert.Equal(t, []graph.Edge{
		{From: "A.sql", To: "B.sql", Kind: graph.EdgeKindExec},
		{From: "B.sql", To: "A.sql", Kind: graph.EdgeKindCycle},
		{From: "B.sql", To: "C.sql", Kind: graph.EdgeKindExec},
		{From: "A.sql", To: "C.sql", Kind: graph.EdgeKindExec},
	}, data.Edges)
	assert.Equal(t, 1, data.Stats.Closures)
}

func TestHandleImpact(t *testing.T) {
	h, _ := setupServer(t)

	rec := get(t, h, "/api/runs/1/impact/c")
	require.Equal(t, http.StatusOK, rec.Code)

	var report impact.ImpactReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Occurrences)
	assert.Equal(t, []string{"B.sql", "A.sql"}, report.DirectCallers)
}

func TestHandleErrors(t *testing.T) {
	h, _ := setupServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"invalid run id", "/api/runs/abc", http.StatusBadRequest},
		{"zero run id", "/api/runs/0/graph", http.StatusBadRequest},
		{"unknown run", "/api/runs/99", http.StatusNotFound},
		{"unknown run graph", "/api/runs/99/graph", http.StatusNotFound},
		{"unknown procedure", "/api/runs/1/impact/Z", http.StatusNotFound},
		{"unknown route", "/api/nodes", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, get(t, h, tt.path).Code)
		})
	}
}

func TestHandleStats(t *testing.T) {
	h, _ := setupServer(t)

	rec := get(t, h, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.RunCount)
	assert.EqualValues(t, 5, stats.NodeCount)
}
