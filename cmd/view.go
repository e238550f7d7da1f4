package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/config"
	"github.com/zheng/sprocmap/internal/web"
)

func viewCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "view",
		Short: "以 JSON API 提供已保存的运行记录",
		Long: `启动 HTTP 服务，以 JSON 提供已保存的调用树。

接口：
  GET /api/runs                      运行记录列表
  GET /api/runs/{id}                 调用树和函数清单
  GET /api/runs/{id}/graph           去重后的过程和调用边
  GET /api/runs/{id}/impact/{proc}   某个过程的调用路径和上下游
  GET /api/stats                     数据库统计`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := web.NewServer(db, port, config.GetLogger(ctx))
			return server.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP 端口")

	return cmd
}
