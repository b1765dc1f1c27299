package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"pcconv-go/internal/model"
	"pcconv-go/internal/pipeline"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgCyan, color.Bold)
	warnColor    = color.New(color.FgYellow)
)

func initUI(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// progressNotifier 用进度条显示已完成的文件数，总数在第一个文件开始前未知，运行中逐步增加。
type progressNotifier struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	started int
}

func newProgressNotifier() *progressNotifier {
	bar := progressbar.NewOptions(
		0,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
	return &progressNotifier{bar: bar}
}

func (p *progressNotifier) Notify(e pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e.Type {
	case pipeline.EventUnitStarted:
		p.started++
		p.bar.ChangeMax(p.started)
	case pipeline.EventChunkStarted:
		p.bar.Describe(fmt.Sprintf("%s chunk %s/%d", filepath.Base(e.InputFile), e.ChunkID, e.ChunkTotal))
	case pipeline.EventUnitFinished:
		p.bar.Describe(filepath.Base(e.InputFile))
		_ = p.bar.Add(1)
	}
}

func (p *progressNotifier) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}

// printSummary 输出批次汇总和逐文件结果。
func printSummary(report *model.BatchReport) {
	fmt.Println()
	headerColor.Printf("Batch %s\n", report.BatchID)
	for _, r := range report.Results {
		name := filepath.Base(r.InputFilePath)
		if r.IsSuccess {
			successColor.Print("  ✓ ")
			fmt.Printf("%s  %d files  %dms  -> %s\n", name, len(r.OutputFiles), r.DurationMs, r.OutputDirectory)
		} else {
			failureColor.Print("  ✗ ")
			fmt.Printf("%s  %dms  %s\n", name, r.DurationMs, r.ErrorMessage)
		}
	}
	for _, name := range report.Unmatched {
		warnColor.Printf("  ? %s not found in input directory\n", name)
	}
	fmt.Println()
	fmt.Printf("Total: %d  ", report.Total)
	successColor.Printf("Succeeded: %d  ", report.Succeeded)
	if report.Failed > 0 {
		failureColor.Printf("Failed: %d  ", report.Failed)
	} else {
		fmt.Print("Failed: 0  ")
	}
	fmt.Printf("Duration: %dms\n", report.DurationMs)
	if report.ArtifactPath != "" {
		fmt.Printf("Results written to %s\n", report.ArtifactPath)
	}
}
