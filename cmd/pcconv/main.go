// Package main 是 pcconv 命令行工具的入口点。
package main

import (
	"os"

	"github.com/spf13/cobra"

	"pcconv-go/internal/config"
	"pcconv-go/pkg/log"
)

var (
	cfgFile string
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "pcconv",
	Short: "Chunked, concurrency-limited point-cloud conversion",
	Long: `pcconv converts point-cloud files from the input directory by running an
external converter. Files larger than the chunk threshold are split into
byte ranges that are converted one after another; files run concurrently up
to the configured limit.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. 初始化配置，默认路径下没有配置文件时只使用默认值和环境变量
		path := cfgFile
		if !cmd.Flags().Changed("config") {
			if _, err := os.Stat(path); err != nil {
				path = ""
			}
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		config.Conf = cfg

		// 2. 初始化日志记录器
		log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
		initUI(noColor)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./configs/config.yaml", "config file path (empty for defaults and environment only)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
