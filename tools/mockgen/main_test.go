package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/inventory"
)

func TestGenerateProject(t *testing.T) {
	cfg := &Config{
		OutputDir:   t.TempDir(),
		NumProcs:    10,
		NumFuncs:    6,
		MaxDepth:    2,
		CallDensity: 2,
		CycleRate:   0.2,
		FuncRefs:    2,
		Seed:        7,
	}
	require.NoError(t, generateProject(cfg))

	procs, err := os.ReadDir(filepath.Join(cfg.OutputDir, "procs"))
	require.NoError(t, err)
	assert.Len(t, procs, 10)

	funcs, err := os.ReadDir(filepath.Join(cfg.OutputDir, "functions"))
	require.NoError(t, err)
	assert.Len(t, funcs, 6)

	var errs []error
	builder := graph.NewBuilder(nil, graph.WithOnError(func(err error) { errs = append(errs, err) }))
	root := filepath.Join(cfg.OutputDir, "procs", "usp_0000.sql")

	tree, err := builder.Build(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, errs, "every generated exec resolves")
	assert.Equal(t, "usp_0000.sql", tree.Name())
	assert.NotEmpty(t, tree.Children)

	_, err = inventory.NewAnalyzer(builder).Inventory(context.Background(), root, filepath.Join(cfg.OutputDir, "functions"))
	require.NoError(t, err)
}

func TestGenerateProject_Deterministic(t *testing.T) {
	gen := func() string {
		cfg := &Config{OutputDir: t.TempDir(), NumProcs: 12, NumFuncs: 4, MaxDepth: 3, CallDensity: 2, FuncRefs: 2, Seed: 42}
		require.NoError(t, generateProject(cfg))
		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "procs", "usp_0000.sql"))
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, gen(), gen())
}

func TestGenerateProject_InvalidConfig(t *testing.T) {
	assert.Error(t, generateProject(&Config{OutputDir: t.TempDir()}))
}
