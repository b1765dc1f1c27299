package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pcconv-go/internal/config"
	"pcconv-go/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run [file names...]",
	Short: "Convert files from the input directory",
	Long: `Convert every file with the configured extension in the input directory,
or only the named files when arguments are given. Names are matched
case-insensitively against file names in the input directory.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	// Ctrl+C 会终止正在运行的转换程序，已启动的文件记为失败
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progress := newProgressNotifier()
	a, err := buildApp(ctx, config.Conf, progress)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.batchService.Run(ctx, service.NewBatchID(), args)
	progress.Finish()
	if err != nil {
		return err
	}
	printSummary(report)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", report.Failed, report.Total)
	}
	return nil
}
