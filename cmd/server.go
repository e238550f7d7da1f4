package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "启动 MCP (Model Context Protocol) 服务器",
		Long: `启动 MCP 服务器（stdio），允许 AI 助手直接分析存储过程调用树。

MCP 工具包括：
  - map: 构建调用树
  - functions: 只在调用树内使用的函数
  - history: 已保存的运行记录
  - show: 已保存运行的调用树
  - impact: 已保存运行中某个过程的调用路径和上下游`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			// Validate the cache settings once up front.
			if _, err := configuredBuilder(cmd, nil); err != nil {
				return err
			}
			newBuilder := func(onError func(error)) *graph.Builder {
				b, _ := configuredBuilder(cmd, onError)
				return b
			}

			server := mcp.NewServer(db, newBuilder, os.Stdin, cmd.OutOrStdout())
			if err := server.Run(cmd.Context()); err != nil {
				return fmt.Errorf("MCP 服务器异常退出: %w", err)
			}
			return nil
		},
	}

	return cmd
}
