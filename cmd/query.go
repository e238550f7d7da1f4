package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/config"
	"github.com/zheng/sprocmap/internal/display"
	"github.com/zheng/sprocmap/internal/export"
	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/impact"
	"github.com/zheng/sprocmap/internal/storage"
)

func historyCmd() *cobra.Command {
	var clearAll bool
	var deleteID int64

	cmd := &cobra.Command{
		Use:   "history",
		Short: "列出已保存的运行记录",
		Long: `列出通过 --save 保存到数据库中的 map / functions 运行记录。

示例：
  sprocmap history
  sprocmap history --delete 3
  sprocmap history --clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()

			if clearAll {
				if err := db.Clear(); err != nil {
					return fmt.Errorf("清空数据库失败: %w", err)
				}
				fmt.Fprintln(out, "已清空所有运行记录")
				return nil
			}
			if deleteID > 0 {
				if err := db.DeleteRun(deleteID); err != nil {
					return fmt.Errorf("删除运行记录失败: %w", err)
				}
				fmt.Fprintf(out, "已删除运行 #%d\n", deleteID)
				return nil
			}

			runs, err := db.ListRuns()
			if err != nil {
				return fmt.Errorf("查询运行记录失败: %w", err)
			}

			if config.GetConfig(cmd.Context()).Format == config.FormatJSON {
				if runs == nil {
					runs = []*storage.Run{}
				}
				return outputJSON(out, runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "暂无保存的运行记录")
				return nil
			}

			runCount, nodeCount, err := db.GetStats()
			if err != nil {
				return fmt.Errorf("查询统计失败: %w", err)
			}
			fmt.Fprint(out, display.FormatRuns(runs))
			fmt.Fprintf(out, "共 %d 次运行, %d 个节点\n", runCount, nodeCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearAll, "clear", false, "删除所有运行记录")
	cmd.Flags().Int64Var(&deleteID, "delete", 0, "删除指定 ID 的运行记录")

	return cmd
}

// showResult is the JSON shape of the show command
type showResult struct {
	Run       *storage.Run    `json:"run"`
	Tree      *graph.Node     `json:"tree"`
	Stats     graph.TreeStats `json:"stats"`
	Functions []string        `json:"functions,omitempty"`
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "重新显示已保存的调用树",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := db.GetRun(runID)
			if err != nil {
				return err
			}
			root, err := db.LoadTree(runID)
			if err != nil {
				return fmt.Errorf("加载调用树失败: %w", err)
			}

			var functions []string
			if run.Kind == storage.RunKindFunctions {
				if functions, err = db.GetFunctions(runID); err != nil {
					return fmt.Errorf("加载函数清单失败: %w", err)
				}
				if functions == nil {
					functions = []string{}
				}
			}

			cfg := config.GetConfig(cmd.Context())
			out := cmd.OutOrStdout()

			switch cfg.Format {
			case config.FormatJSON:
				return outputJSON(out, showResult{Run: run, Tree: root, Stats: graph.Stats(root), Functions: functions})
			case config.FormatMarkdown:
				return export.NewExporter().Export(out, export.Report{Tree: root, Functions: functions}, export.DefaultExportOptions())
			}

			fmt.Fprintf(out, "运行 #%d (%s) %s\n\n", run.ID, run.Kind, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if err := writeMap(out, cfg, root, 0); err != nil {
				return err
			}
			if functions != nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Functions used only in this tree:")
				fmt.Fprint(out, display.FormatList(functions))
			}
			return nil
		},
	}

	return cmd
}

func callersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callers <run-id> <procedure>",
		Short: "查询已保存调用树中某个存储过程的调用路径",
		Long: `在已保存的运行中查找存储过程的每一次出现，列出从根到该过程的调用路径，
以及它的上游调用者和下游被调用过程。名称可带或不带 .sql 后缀。

示例：
  sprocmap callers 1 usp_Load
  sprocmap callers 1 usp_Load.sql --format markdown`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := impact.NewAnalyzer(db).AnalyzeImpact(runID, args[1])
			if err != nil {
				return err
			}
			config.GetLogger(cmd.Context()).Debug("impact analyzed", "summary", report.Summary())

			out := cmd.OutOrStdout()
			switch config.GetConfig(cmd.Context()).Format {
			case config.FormatJSON:
				return outputJSON(out, report)
			case config.FormatMarkdown:
				fmt.Fprint(out, report.FormatMarkdown())
			default:
				fmt.Fprint(out, display.FormatCallPaths(report.Paths))
				fmt.Fprintln(out)
				fmt.Fprint(out, report.FormatTree())
			}
			return nil
		},
	}

	return cmd
}
