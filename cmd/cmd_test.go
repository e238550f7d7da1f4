package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheng/sprocmap/internal/config"
	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/testutil"
)

const project = `
-- procs/A.sql --
CREATE PROCEDURE A AS
exec B
exec C
SELECT dbo.fnFoo()
-- procs/B.sql --
CREATE PROCEDURE B AS
exec C
exec A
SELECT dbo.fnBar()
-- procs/C.sql --
CREATE PROCEDURE C AS
SELECT 1
-- procs/D.sql --
CREATE PROCEDURE D AS
SELECT dbo.fnBar()
-- functions/fnFoo.sql --
CREATE FUNCTION dbo.fnFoo() RETURNS INT AS BEGIN RETURN 1 END
-- functions/fnBar.sql --
CREATE FUNCTION dbo.fnBar() RETURNS INT AS BEGIN RETURN 2 END
`

// setup writes the fixture project and moves into an empty working directory
func setup(t *testing.T) string {
	t.Helper()
	dir := testutil.WriteTree(t, project)
	t.Chdir(t.TempDir())
	return dir
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	config.ResetConfig()

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestMap_Text(t *testing.T) {
	dir := setup(t)

	out, _, err := execute(t, "map", filepath.Join(dir, "procs", "A.sql"))
	require.NoError(t, err)

	assert.Equal(t, `A.sql
├── B.sql
│   ├── C.sql
│   └── A.sql (circular reference)
└── C.sql

Distinct stored procedures:
A.sql
B.sql
C.sql
`, out)
}

func TestMap_Arrows(t *testing.T) {
	dir := setup(t)

	out, _, err := execute(t, "map", filepath.Join(dir, "procs", "A.sql"), "--style", "arrows")
	require.NoError(t, err)

	assert.Contains(t, out, "A.sql\n\t-> B.sql\n\t\t-> C.sql\n\t\t-> A.sql (circular reference)\n\t-> C.sql\n")
}

func TestMap_JSON(t *testing.T) {
	dir := setup(t)

	out, _, err := execute(t, "map", filepath.Join(dir, "procs", "A.sql"), "--format", "json")
	require.NoError(t, err)

	var got struct {
		Procedures []string        `json:"procedures"`
		Stats      graph.TreeStats `json:"stats"`
		Tree       struct {
			File     string `json:"file"`
			Children []struct {
				File string `json:"file"`
			} `json:"children"`
		} `json:"tree"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, []string{"A.sql", "B.sql", "C.sql"}, got.Procedures)
	assert.Equal(t, graph.TreeStats{Nodes: 5, Closures: 1, MaxDepth: 2, Procedures: 3}, got.Stats)
	assert.Equal(t, filepath.Join(dir, "procs", "A.sql"), got.Tree.File)
	assert.Len(t, got.Tree.Children, 2)
}

func TestMap_MissingReferenceWarns(t *testing.T) {
	dir := testutil.WriteTree(t, `
-- Root.sql --
exec Present
exec Missing
-- Present.sql --
select 1
`)
	t.Chdir(t.TempDir())

	out, errOut, err := execute(t, "map", filepath.Join(dir, "Root.sql"))
	require.NoError(t, err)

	assert.Contains(t, out, "Root.sql\n└── Present.sql\n")
	assert.Contains(t, errOut, "警告")
	assert.Contains(t, errOut, "Missing.sql")
}

func TestMap_InvalidRoot(t *testing.T) {
	dir := setup(t)

	_, _, err := execute(t, "map", filepath.Join(dir, "procs", "Nope.sql"))
	assert.ErrorIs(t, err, graph.ErrInvalidInput)

	_, _, err = execute(t, "map")
	assert.Error(t, err)
}

func TestFunctions(t *testing.T) {
	dir := setup(t)

	out, _, err := execute(t, "functions", filepath.Join(dir, "procs", "A.sql"), filepath.Join(dir, "functions"))
	require.NoError(t, err)
	assert.Equal(t, "dbo.fnFoo\n", out)

	_, _, err = execute(t, "functions", filepath.Join(dir, "procs", "A.sql"), filepath.Join(dir, "nowhere"))
	assert.ErrorIs(t, err, graph.ErrInvalidDirectory)
}

func TestInvalidFormat(t *testing.T) {
	dir := setup(t)

	_, _, err := execute(t, "map", filepath.Join(dir, "procs", "A.sql"), "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestSaveHistoryShowCallers(t *testing.T) {
	dir := setup(t)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, errOut, err := execute(t, "--db", dbPath, "functions", "--save",
		filepath.Join(dir, "procs", "A.sql"), filepath.Join(dir, "functions"))
	require.NoError(t, err)
	assert.Contains(t, errOut, "已保存运行 #1")

	out, _, err := execute(t, "--db", dbPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "functions")
	assert.Contains(t, out, "共 1 次运行, 5 个节点")

	out, _, err = execute(t, "--db", dbPath, "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "└── A.sql (circular reference)")
	assert.Contains(t, out, "Functions used only in this tree:\ndbo.fnFoo\n")

	out, _, err = execute(t, "--db", dbPath, "callers", "1", "c")
	require.NoError(t, err)
	assert.Contains(t, out, "A.sql -> B.sql -> C.sql\nA.sql -> C.sql\n")

	_, _, err = execute(t, "--db", dbPath, "show", "42")
	assert.Error(t, err)

	_, _, err = execute(t, "--db", dbPath, "show", "abc")
	assert.Error(t, err)

	out, _, err = execute(t, "--db", dbPath, "history", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "已清空")

	out, _, err = execute(t, "--db", dbPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "暂无保存的运行记录")
}

func TestExport_ToFile(t *testing.T) {
	dir := setup(t)
	outFile := filepath.Join(t.TempDir(), "report.md")

	_, _, err := execute(t, "export", filepath.Join(dir, "procs", "A.sql"), filepath.Join(dir, "functions"),
		"-o", outFile, "--title", "Nightly load")
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Nightly load: A.sql")
	assert.Contains(t, string(data), "flowchart TD")
	assert.Contains(t, string(data), "dbo.fnFoo")
}
