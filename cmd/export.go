package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/export"
	"github.com/zheng/sprocmap/internal/inventory"
)

func exportCmd() *cobra.Command {
	var outputFile string
	var noMermaid bool
	var title string

	cmd := &cobra.Command{
		Use:   "export <base.sql> [functions-dir]",
		Short: "导出 Markdown 报告",
		Long: `导出调用树的 Markdown 报告，包含树形结构、涉及的存储过程和 Mermaid 流程图。
指定函数目录时附带只在树内使用的函数清单。

示例：
  sprocmap export procs/usp_Main.sql -o report.md
  sprocmap export procs/usp_Main.sql functions/ --no-mermaid`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			builder, err := newBuilder(cmd)
			if err != nil {
				return err
			}

			var report export.Report
			if len(args) == 2 {
				inv, err := inventory.NewAnalyzer(builder).Inventory(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				report.Tree = inv.Tree
				report.Functions = inv.Functions
				if report.Functions == nil {
					report.Functions = []string{}
				}
			} else {
				if report.Tree, err = builder.Build(ctx, args[0]); err != nil {
					return err
				}
			}

			opts := export.DefaultExportOptions()
			opts.IncludeMermaid = !noMermaid
			if title != "" {
				opts.Title = title
			}

			var w io.Writer = cmd.OutOrStdout()
			if outputFile != "" && outputFile != "-" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("创建输出文件失败: %w", err)
				}
				defer f.Close()
				w = f
			}

			return export.NewExporter().Export(w, report, opts)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "输出文件路径 (默认输出到 stdout)")
	cmd.Flags().BoolVar(&noMermaid, "no-mermaid", false, "不生成 Mermaid 图表")
	cmd.Flags().StringVar(&title, "title", "", "报告标题")

	return cmd
}
