package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/config"
	"github.com/zheng/sprocmap/internal/display"
	"github.com/zheng/sprocmap/internal/export"
	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/storage"
)

// mapResult is the JSON shape of the map command
type mapResult struct {
	Root       string          `json:"root"`
	Tree       *graph.Node     `json:"tree"`
	Procedures []string        `json:"procedures"`
	Stats      graph.TreeStats `json:"stats"`
	RunID      int64           `json:"run_id,omitempty"`
}

func mapCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "map <base.sql>",
		Short: "打印存储过程调用树",
		Long: `从基础存储过程文件出发，递归解析 exec 调用，打印完整调用树
以及树中涉及的所有存储过程。

被调用的过程在基础文件所在目录中按 <名称>.sql 查找（不区分大小写）。
指回祖先的调用标记为 (circular reference)，不再展开。

示例：
  sprocmap map procs/usp_Main.sql
  sprocmap map procs/usp_Main.sql --style arrows
  sprocmap map procs/usp_Main.sql --format json --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMap(cmd, args[0], save)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "保存本次结果到数据库")

	return cmd
}

func runMap(cmd *cobra.Command, rootPath string, save bool) error {
	ctx := cmd.Context()
	cfg := config.GetConfig(ctx)
	logger := config.GetLogger(ctx)

	builder, err := newBuilder(cmd)
	if err != nil {
		return err
	}

	root, err := builder.Build(ctx, rootPath)
	if err != nil {
		return err
	}

	stats := graph.Stats(root)
	logger.Debug("call tree built", "root", rootPath, "nodes", stats.Nodes, "closures", stats.Closures, "max_depth", stats.MaxDepth)

	var runID int64
	if save {
		if runID, err = saveRun(cmd, storage.RunKindMap, "", root, nil); err != nil {
			return err
		}
	}

	return writeMap(cmd.OutOrStdout(), cfg, root, runID)
}

func writeMap(w io.Writer, cfg *config.Config, root *graph.Node, runID int64) error {
	switch cfg.Format {
	case config.FormatJSON:
		return outputJSON(w, mapResult{
			Root:       root.FilePath,
			Tree:       root,
			Procedures: graph.DistinctNames(root),
			Stats:      graph.Stats(root),
			RunID:      runID,
		})
	case config.FormatMarkdown:
		return export.NewExporter().Export(w, export.Report{Tree: root}, export.DefaultExportOptions())
	default:
		fmt.Fprint(w, renderTree(w, cfg, root))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Distinct stored procedures:")
		fmt.Fprint(w, display.FormatList(graph.DistinctNames(root)))
		return nil
	}
}
