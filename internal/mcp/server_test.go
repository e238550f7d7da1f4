package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/storage"
	"github.com/zheng/sprocmap/internal/testutil"
)

const project = `
-- procs/A.sql --
exec B
exec Missing
SELECT dbo.fnFoo()
-- procs/B.sql --
exec A
-- functions/fnFoo.sql --
CREATE FUNCTION dbo.fnFoo()
`

func newBuilder(onError func(error)) *graph.Builder {
	return graph.NewBuilder(nil, graph.WithOnError(onError))
}

// roundTrip sends each request line and decodes one response per request
func roundTrip(t *testing.T, s *Server, out *strings.Builder, lines ...string) []Response {
	t.Helper()
	s.input = strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, s.Run(context.Background()))

	var responses []Response
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func callText(t *testing.T, resp Response) (string, bool) {
	t.Helper()
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Content, 1)
	return result.Content[0].Text, result.IsError
}

func TestServer_Protocol(t *testing.T) {
	var out strings.Builder
	s := NewServer(nil, newBuilder, nil, &out)

	responses := roundTrip(t, s, &out,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"bogus"}`,
		`not json`,
	)
	require.Len(t, responses, 4)

	assert.Nil(t, responses[0].Error)
	assert.Contains(t, mustJSON(t, responses[0].Result), `"name":"sprocmap"`)

	tools := mustJSON(t, responses[1].Result)
	for _, name := range []string{"map", "functions", "history", "show", "impact"} {
		assert.Contains(t, tools, `"name":"`+name+`"`)
	}

	require.NotNil(t, responses[2].Error)
	assert.Equal(t, -32601, responses[2].Error.Code)
	require.NotNil(t, responses[3].Error)
	assert.Equal(t, -32700, responses[3].Error.Code)
}

func TestServer_MapAndFunctions(t *testing.T) {
	dir := testutil.WriteTree(t, project)
	root := filepath.Join(dir, "procs", "A.sql")
	fns := filepath.Join(dir, "functions")

	var out strings.Builder
	s := NewServer(nil, newBuilder, nil, &out)

	responses := roundTrip(t, s, &out,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"map","arguments":{"root":`+quote(root)+`}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"functions","arguments":{"root":`+quote(root)+`,"functions_dir":`+quote(fns)+`}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"map","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"history","arguments":{}}}`,
	)
	require.Len(t, responses, 4)

	text, isErr := callText(t, responses[0])
	assert.False(t, isErr)
	assert.Contains(t, text, "A.sql\n└── B.sql\n    └── A.sql (circular reference)\n")
	assert.Contains(t, text, "Distinct stored procedures:\nA.sql\nB.sql\n")
	assert.Contains(t, text, "Missing.sql")

	text, isErr = callText(t, responses[1])
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "dbo.fnFoo\n"))

	_, isErr = callText(t, responses[2])
	assert.True(t, isErr)

	text, isErr = callText(t, responses[3])
	assert.True(t, isErr)
	assert.Contains(t, text, "未打开数据库")
}

func TestServer_SavedRuns(t *testing.T) {
	dir := testutil.WriteTree(t, project)
	tree, err := graph.NewBuilder(nil).Build(context.Background(), filepath.Join(dir, "procs", "A.sql"))
	require.NoError(t, err)

	db, err := storage.Open(filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	defer db.Close()
	runID, err := db.SaveTree(storage.RunKindMap, "", tree)
	require.NoError(t, err)
	require.Equal(t, int64(1), runID)

	var out strings.Builder
	s := NewServer(db, newBuilder, nil, &out)

	responses := roundTrip(t, s, &out,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"history","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"show","arguments":{"run_id":1}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"impact","arguments":{"run_id":1,"procedure":"B"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"show","arguments":{"run_id":9}}}`,
	)
	require.Len(t, responses, 4)

	text, isErr := callText(t, responses[0])
	assert.False(t, isErr)
	assert.Contains(t, text, "map")

	text, isErr = callText(t, responses[1])
	assert.False(t, isErr)
	assert.Equal(t, "A.sql\n└── B.sql\n    └── A.sql (circular reference)\n", text)

	text, isErr = callText(t, responses[2])
	assert.False(t, isErr)
	assert.Contains(t, text, "## 变更影响分析: B")
	assert.Contains(t, text, "A.sql → B.sql")

	_, isErr = callText(t, responses[3])
	assert.True(t, isErr)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
