package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/config"
	"github.com/zheng/sprocmap/internal/display"
	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/storage"
)

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newBuilder creates a tree builder from the command's config. Dropped
// branches are reported on stderr and keep the build going.
func newBuilder(cmd *cobra.Command) (*graph.Builder, error) {
	stderr := cmd.ErrOrStderr()
	return configuredBuilder(cmd, func(err error) {
		fmt.Fprintf(stderr, "警告: %v\n", err)
	})
}

func configuredBuilder(cmd *cobra.Command, onError func(error)) (*graph.Builder, error) {
	cfg := config.GetConfig(cmd.Context())

	var loader graph.Loader = graph.FileLoader{}
	if cfg.CacheSize > 0 {
		cached, err := graph.NewCachedLoader(loader, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		loader = cached
	}

	return graph.NewBuilder(loader,
		graph.WithMaxDepth(cfg.MaxDepth),
		graph.WithLogger(config.GetLogger(cmd.Context())),
		graph.WithOnError(onError),
	), nil
}

// treeStyle enables colors only when w is a terminal
func treeStyle(w io.Writer) display.TreeStyle {
	f, ok := w.(*os.File)
	if !ok {
		return display.TreeStyle{}
	}
	return display.TreeStyle{Color: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())}
}

// renderTree renders the tree in the configured text style
func renderTree(w io.Writer, cfg *config.Config, root *graph.Node) string {
	if cfg.Style == config.StyleArrows {
		return display.FormatIndentedTree(root, treeStyle(w))
	}
	return display.FormatTree(root, treeStyle(w))
}

func openDB(cmd *cobra.Command) (*storage.DB, error) {
	db, err := storage.Open(config.GetConfig(cmd.Context()).DBPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return db, nil
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("无效的运行 ID: %q", s)
	}
	return id, nil
}

// saveRun persists a tree (and its inventory for functions runs)
func saveRun(cmd *cobra.Command, kind storage.RunKind, functionsDir string, root *graph.Node, functions []string) (int64, error) {
	db, err := openDB(cmd)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	runID, err := db.SaveTree(kind, functionsDir, root)
	if err != nil {
		return 0, fmt.Errorf("保存调用树失败: %w", err)
	}
	if kind == storage.RunKindFunctions {
		if err := db.SaveFunctions(runID, functions); err != nil {
			return 0, fmt.Errorf("保存函数清单失败: %w", err)
		}
	}

	config.GetLogger(cmd.Context()).Debug("saved run", "id", runID, "kind", kind)
	fmt.Fprintf(cmd.ErrOrStderr(), "已保存运行 #%d\n", runID)
	return runID, nil
}
