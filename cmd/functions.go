package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/config"
	"github.com/zheng/sprocmap/internal/display"
	"github.com/zheng/sprocmap/internal/export"
	"github.com/zheng/sprocmap/internal/inventory"
	"github.com/zheng/sprocmap/internal/storage"
)

func functionsCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "functions <base.sql> <functions-dir>",
		Short: "列出只在调用树内使用的 SQL 函数",
		Long: `构建基础存储过程的调用树，找出函数目录中定义、被调用树使用、
且未被同目录下其他存储过程使用的函数，按字典序输出。

函数目录中每个 .sql 文件视为一个函数定义，文件名（去掉 .sql）即函数名，
可与带 schema 的引用匹配（fnFoo.sql 对应 dbo.fnFoo）。

示例：
  sprocmap functions procs/usp_Main.sql functions/
  sprocmap functions procs/usp_Main.sql functions/ --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunctions(cmd, args[0], args[1], save)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "保存本次结果到数据库")

	return cmd
}

func runFunctions(cmd *cobra.Command, rootPath, functionsDir string, save bool) error {
	ctx := cmd.Context()
	cfg := config.GetConfig(ctx)

	builder, err := newBuilder(cmd)
	if err != nil {
		return err
	}

	report, err := inventory.NewAnalyzer(builder).Inventory(ctx, rootPath, functionsDir)
	if err != nil {
		return err
	}

	config.GetLogger(ctx).Debug("inventory computed",
		"defined", report.Defined,
		"tree_files", len(report.TreeFiles),
		"outsiders", len(report.Outsiders),
		"functions", len(report.Functions),
	)

	var runID int64
	if save {
		if runID, err = saveRun(cmd, storage.RunKindFunctions, functionsDir, report.Tree, report.Functions); err != nil {
			return err
		}
	}

	return writeFunctions(cmd.OutOrStdout(), cfg, report, runID)
}

func writeFunctions(w io.Writer, cfg *config.Config, report *inventory.Report, runID int64) error {
	switch cfg.Format {
	case config.FormatJSON:
		return outputJSON(w, struct {
			*inventory.Report
			RunID int64 `json:"run_id,omitempty"`
		}{report, runID})
	case config.FormatMarkdown:
		fns := report.Functions
		if fns == nil {
			fns = []string{}
		}
		return export.NewExporter().Export(w, export.Report{Tree: report.Tree, Functions: fns}, export.DefaultExportOptions())
	default:
		fmt.Fprint(w, display.FormatList(report.Functions))
		return nil
	}
}
