// Package inventory finds SQL functions used only inside a procedure call tree.
package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zheng/sprocmap/internal/extract"
	"github.com/zheng/sprocmap/internal/graph"
)

// Report is the result of a function inventory
type Report struct {
	Root         string      `json:"root"`
	FunctionsDir string      `json:"functions_dir"`
	Functions    []string    `json:"functions"`  // 仅在调用树内使用的函数
	Defined      int         `json:"defined"`    // 函数目录中的定义数
	TreeFiles    []string    `json:"tree_files"` // 调用树中的存储过程文件
	Outsiders    []string    `json:"outsiders"`  // 同目录下不在树中的文件
	Tree         *graph.Node `json:"-"`
}

// Analyzer computes function inventories on top of a call tree builder
type Analyzer struct {
	builder *graph.Builder
}

// NewAnalyzer creates a new inventory analyzer
func NewAnalyzer(builder *graph.Builder) *Analyzer {
	return &Analyzer{builder: builder}
}

// Inventory builds the tree rooted at rootPath and returns the functions
// defined in functionsDir that the tree uses and no sibling procedure does.
func (a *Analyzer) Inventory(ctx context.Context, rootPath, functionsDir string) (*Report, error) {
	if err := graph.ValidateDir(functionsDir); err != nil {
		return nil, err
	}

	root, err := a.builder.Build(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build call tree: %w", err)
	}

	return a.FromTree(ctx, root, functionsDir)
}

// FromTree runs the inventory against an already built tree
func (a *Analyzer) FromTree(ctx context.Context, root *graph.Node, functionsDir string) (*Report, error) {
	defs, err := listDefinitions(functionsDir)
	if err != nil {
		return nil, err
	}

	treeFiles := graph.DistinctFiles(root)
	inTree := make(map[string]bool, len(treeFiles))
	for _, f := range treeFiles {
		inTree[graph.PathKey(f)] = true
	}

	outsiders, err := listOutsiders(filepath.Dir(root.FilePath), inTree)
	if err != nil {
		return nil, err
	}

	// definition key -> qualified reference as first spelled in the tree
	usedInTree := make(map[string]string)
	if err := a.collect(ctx, treeFiles, func(ref string) {
		if key, ok := matchDefinition(ref, defs); ok {
			if _, seen := usedInTree[key]; !seen {
				usedInTree[key] = ref
			}
		}
	}); err != nil {
		return nil, err
	}

	usedOutside := make(map[string]bool)
	if err := a.collect(ctx, outsiders, func(ref string) {
		if key, ok := matchDefinition(ref, defs); ok {
			usedOutside[key] = true
		}
	}); err != nil {
		return nil, err
	}

	functions := make([]string, 0, len(usedInTree))
	for key, ref := range usedInTree {
		if usedOutside[key] {
			continue
		}
		functions = append(functions, ref)
	}
	sort.Strings(functions)

	return &Report{
		Root:         root.FilePath,
		FunctionsDir: functionsDir,
		Functions:    functions,
		Defined:      len(defs),
		TreeFiles:    treeFiles,
		Outsiders:    outsiders,
		Tree:         root,
	}, nil
}

// collect loads each file and feeds its function references to fn.
// Unreadable files are reported and skipped.
func (a *Analyzer) collect(ctx context.Context, files []string, fn func(ref string)) error {
	loader := a.builder.Loader()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := loader.Load(f)
		if err != nil {
			a.builder.Report(&graph.PathError{Kind: graph.ErrUnreadableFile, Path: f, Err: err})
			continue
		}
		for _, ref := range extract.FunctionReferences(text) {
			fn(ref)
		}
	}
	return nil
}

// listDefinitions returns the lower-cased stems of the .sql files in dir
func listDefinitions(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &graph.PathError{Kind: graph.ErrInvalidDirectory, Path: dir, Err: err}
	}

	defs := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".sql") {
			continue
		}
		defs[strings.ToLower(name[:len(name)-len(".sql")])] = true
	}
	return defs, nil
}

// listOutsiders returns the files in dir that are not part of the tree
func listOutsiders(dir string, inTree map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var outsiders []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if inTree[graph.PathKey(path)] {
			continue
		}
		outsiders = append(outsiders, path)
	}
	return outsiders, nil
}

// matchDefinition maps a reference to a definition key. A definition file may
// be named after the qualified reference (dbo.fnFoo.sql) or only the function
// (fnFoo.sql).
func matchDefinition(ref string, defs map[string]bool) (string, bool) {
	key := strings.ToLower(ref)
	if defs[key] {
		return key, true
	}
	key = strings.ToLower(extract.Unqualified(ref))
	if defs[key] {
		return key, true
	}
	return "", false
}
