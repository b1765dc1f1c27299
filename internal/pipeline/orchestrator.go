package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"pcconv-go/internal/model"
	"pcconv-go/pkg/log"
)

// Unit 处理单个文件，*Processor 是它的实现。
type Unit interface {
	Process(ctx context.Context, inputPath string) *model.ConversionResult
}

// Orchestrator 在准入闸门的限制下并发运行多个转换单元。
type Orchestrator struct {
	unit Unit
	gate *semaphore.Weighted
}

// NewOrchestrator 创建 Orchestrator。闸门由调用方创建并传入，
// 多个 Orchestrator 可以共享或各自持有独立的闸门。
func NewOrchestrator(unit Unit, gate *semaphore.Weighted) *Orchestrator {
	return &Orchestrator{unit: unit, gate: gate}
}

// NewGate 创建一个容量为 maxConcurrent 的准入闸门，小于 1 时按 1 处理。
func NewGate(maxConcurrent int) *semaphore.Weighted {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return semaphore.NewWeighted(int64(maxConcurrent))
}

// RunBatch 处理所有输入并等待全部完成。返回的切片与 inputPaths 等长，
// 第 i 个结果对应第 i 个输入，与完成顺序无关。单个文件失败不会影响其他文件。
func (o *Orchestrator) RunBatch(ctx context.Context, inputPaths []string) []*model.ConversionResult {
	results := make([]*model.ConversionResult, len(inputPaths))
	if len(inputPaths) == 0 {
		return results
	}
	log.Infof("[Orchestrator] 开始批处理, 文件数: %d", len(inputPaths))
	start := time.Now()

	var wg sync.WaitGroup
	for i, path := range inputPaths {
		// 按提交顺序获取名额，超出上限的文件在这里排队
		if err := o.gate.Acquire(ctx, 1); err != nil {
			log.Warnf("[Orchestrator] 未能获取执行名额, File: %s, Error: %v", path, err)
			results[i] = rejectedResult(path, err)
			continue
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer o.gate.Release(1)
			r := o.unit.Process(ctx, path)
			if r == nil {
				r = rejectedResult(path, errors.New("conversion unit returned no result"))
			}
			results[i] = r
		}(i, path)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.IsSuccess {
			succeeded++
		}
	}
	log.Infof("[Orchestrator] 批处理完成, 成功: %d, 失败: %d, 耗时: %s", succeeded, len(results)-succeeded, time.Since(start))
	return results
}

// rejectedResult 为没能开始处理的文件生成失败结果，保证结果数量与输入一致。
func rejectedResult(inputPath string, err error) *model.ConversionResult {
	if abs, absErr := filepath.Abs(inputPath); absErr == nil {
		inputPath = abs
	}
	now := time.Now()
	r := &model.ConversionResult{
		ID:            uuid.NewString(),
		InputFilePath: inputPath,
		StartTime:     now,
		OutputFiles:   []string{},
	}
	r.Finalize(now, err)
	return r
}
