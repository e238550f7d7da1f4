package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zheng/sprocmap/internal/config"
)

// NewRootCmd creates the sprocmap root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "sprocmap",
		Short: "SQL 存储过程调用图分析工具",
		Long: `sprocmap 静态分析一个目录中的 SQL 存储过程源文件，
从基础过程出发重建 exec 调用树（检测循环引用），
并找出只在该调用树内使用的 SQL 函数。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.Verbose)
			if used := config.GetConfigFileUsed(); used != "" {
				logger.Debug("loaded config file", "path", used)
			}

			ctx := config.WithLogger(cmd.Context(), logger)
			cmd.SetContext(config.WithConfig(ctx, cfg))
			return nil
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "配置文件路径 (默认 ./.sprocmap.yaml)")
	pf.StringP("db", "d", config.DefaultDBPath, "数据库文件路径")
	pf.BoolP("verbose", "v", false, "输出调试日志")
	pf.String("format", config.DefaultFormat, "输出格式: text, json, markdown")
	pf.String("style", config.DefaultStyle, "文本树样式: tree, arrows")
	pf.Int("max-depth", config.DefaultMaxDepth, "最大调用深度 (0 = 不限制)")
	pf.Int("cache-size", config.DefaultCacheSize, "文件内容缓存条目数 (0 = 不缓存)")

	RegisterCommands(rootCmd)
	return rootCmd
}

// RegisterCommands adds all subcommands to the root command
func RegisterCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(mapCmd())
	rootCmd.AddCommand(functionsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(callersCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(viewCmd())
}
