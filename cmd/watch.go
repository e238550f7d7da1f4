package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/config"
	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/watcher"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <base.sql> [functions-dir]",
		Short: "监控 SQL 文件变更并自动重新分析",
		Long: `启动 watch 模式，监控基础过程所在目录（以及函数目录）中的 .sql 文件。
检测到变更时重新执行 map（或指定函数目录时执行 functions）并输出结果。

特性：
  - 防抖处理，避免频繁触发分析
  - 只响应 .sql 文件的写入、创建、删除和重命名

示例：
  sprocmap watch procs/usp_Main.sql
  sprocmap watch procs/usp_Main.sql functions/ --debounce-ms 1000`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rootPath := args[0]
			functionsDir := ""
			if len(args) == 2 {
				functionsDir = args[1]
			}

			// Each run gets a fresh builder so cached file text never goes stale.
			run := func() error {
				if functionsDir != "" {
					return runFunctions(cmd, rootPath, functionsDir, false)
				}
				return runMap(cmd, rootPath, false)
			}

			stderr := cmd.ErrOrStderr()
			fmt.Fprintln(stderr, "执行初始分析...")
			if err := run(); err != nil {
				return fmt.Errorf("初始分析失败: %w", err)
			}

			dirs := []string{filepath.Dir(rootPath)}
			if functionsDir != "" && graph.PathKey(functionsDir) != graph.PathKey(dirs[0]) {
				dirs = append(dirs, functionsDir)
			}

			cfg := config.GetConfig(cmd.Context())
			debounce := time.Duration(cfg.DebounceMs) * time.Millisecond
			logger := config.GetLogger(cmd.Context())

			fmt.Fprintf(stderr, "\n开始监控目录: %v\n", dirs)
			fmt.Fprintf(stderr, "防抖延迟: %v\n", debounce)
			fmt.Fprintln(stderr, "按 Ctrl+C 停止...")

			w, err := watcher.New(
				dirs,
				run,
				watcher.WithDebounceDelay(debounce),
				watcher.WithOnAnalysisStart(func(files []string) {
					logger.Debug("changed files", "files", files)
					fmt.Fprintf(stderr, "[%s] 检测到 %d 个文件变更，开始分析...\n", time.Now().Format("15:04:05"), len(files))
				}),
				watcher.WithOnAnalysisDone(func(duration time.Duration) {
					fmt.Fprintf(stderr, "[%s] 分析完成 (耗时 %v)\n", time.Now().Format("15:04:05"), duration.Round(time.Millisecond))
				}),
				watcher.WithOnError(func(err error) {
					fmt.Fprintf(stderr, "[%s] 错误: %v\n", time.Now().Format("15:04:05"), err)
				}),
			)
			if err != nil {
				return fmt.Errorf("创建监控器失败: %w", err)
			}

			w.Start()
			defer w.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-sigCh:
			case <-cmd.Context().Done():
			}

			fmt.Fprintln(stderr, "\n停止监控...")
			return nil
		},
	}

	cmd.Flags().Int("debounce-ms", config.DefaultDebounceMs, "防抖延迟（毫秒）")

	return cmd
}
