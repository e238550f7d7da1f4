package impact

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/storage"
	"github.com/zheng/sprocmap/internal/testutil"
)

// A -> B -> C, B -> A (cycle), A -> C
const fixture = `
-- A.sql --
exec B
exec C
-- B.sql --
exec C
exec A
-- C.sql --
select 1
`

func buildTree(t *testing.T) *graph.Node {
	t.Helper()
	dir := testutil.WriteTree(t, fixture)
	root, err := graph.NewBuilder(nil).Build(context.Background(), filepath.Join(dir, "A.sql"))
	require.NoError(t, err)
	return root
}

func TestAnalyze(t *testing.T) {
	root := buildTree(t)

	tests := []struct {
		name      string
		procedure string
		want      ImpactReport
	}{
		{
			name:      "leaf reached twice",
			procedure: "C",
			want: ImpactReport{
				Target:        "C",
				Occurrences:   2,
				DirectCallers: []string{"B.sql", "A.sql"},
			},
		},
		{
			name:      "suffix and case ignored",
			procedure: "b.SQL",
			want: ImpactReport{
				Target:        "b",
				Occurrences:   1,
				DirectCallers: []string{"A.sql"},
				DirectCallees: []string{"C.sql", "A.sql"},
			},
		},
		{
			name:      "root and its cycle closure",
			procedure: "A",
			want: ImpactReport{
				Target:          "A",
				Occurrences:     2,
				DirectCallers:   []string{"B.sql"},
				IndirectCallers: []string{"A.sql"},
				DirectCallees:   []string{"B.sql", "C.sql"},
				IndirectCallees: []string{"A.sql"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Analyze(root, tt.procedure)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *report)
		})
	}
}

func TestAnalyze_NotFound(t *testing.T) {
	_, err := Analyze(buildTree(t), "Z")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcedureNotFound)
	assert.Contains(t, err.Error(), "procedure not found")
}

func TestAnalyzeImpact_SavedRun(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "impact.db"))
	require.NoError(t, err)
	defer db.Close()

	runID, err := db.SaveTree(storage.RunKindMap, "", buildTree(t))
	require.NoError(t, err)

	report, err := NewAnalyzer(db).AnalyzeImpact(runID, "C.sql")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A.sql", "B.sql", "C.sql"}, {"A.sql", "C.sql"}}, report.Paths)
	assert.Equal(t, 2, report.Occurrences)

	_, err = NewAnalyzer(db).AnalyzeImpact(runID+100, "C")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestAnalyze_QualifiedCycleCountsAsAncestor(t *testing.T) {
	dir := testutil.WriteTree(t, `
-- A.sql --
exec B
-- B.sql --
exec dbo.A
`)
	root, err := graph.NewBuilder(nil).Build(context.Background(), filepath.Join(dir, "A.sql"))
	require.NoError(t, err)

	report, err := Analyze(root, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Occurrences)
	assert.Equal(t, []string{"B.sql"}, report.DirectCallers)

	db, err := storage.Open(filepath.Join(t.TempDir(), "impact.db"))
	require.NoError(t, err)
	defer db.Close()

	runID, err := db.SaveTree(storage.RunKindMap, "", root)
	require.NoError(t, err)

	saved, err := NewAnalyzer(db).AnalyzeImpact(runID, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Occurrences)
	assert.Equal(t, []string{"B.sql"}, saved.DirectCallers)
	assert.Contains(t, saved.Paths, []string{"A.sql", "B.sql", "A.sql"})
}

func TestReportFormatting(t *testing.T) {
	report, err := Analyze(buildTree(t), "B")
	require.NoError(t, err)

	tree := report.FormatTree()
	assert.Contains(t, tree, "B (出现 1 次)")
	assert.Contains(t, tree, "⬆️ 调用者 (共 1 个)\n└── A.sql\n")
	assert.Contains(t, tree, "├── C.sql\n└── A.sql\n")

	md := report.FormatMarkdown()
	assert.Contains(t, md, "## 变更影响分析: B")
	assert.Contains(t, md, "| A.sql |")
	assert.NotContains(t, md, "间接调用者")

	assert.Equal(t,
		"Target: B, Occurrences: 1, Direct Callers: 1, Indirect Callers: 0, Direct Callees: 2, Indirect Callees: 0",
		report.Summary())
}
