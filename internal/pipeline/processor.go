// Package pipeline 定义了点云文件转换的核心流程：
// 分块规划、分块提取、调用外部转换程序、单文件处理和并发批处理。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"pcconv-go/internal/model"
	"pcconv-go/pkg/log"
)

// ProcessorConfig 是 Processor 需要的目录和阈值。
type ProcessorConfig struct {
	OutputDir        string
	TempDir          string
	ChunkThresholdMB int64
}

// Processor 负责单个输入文件的完整转换：直接转换或按字节区间分块转换。
type Processor struct {
	invoker  Invoker
	cfg      ProcessorConfig
	notifier Notifier
}

// NewProcessor 创建一个新的 Processor 实例。notifier 可以为 nil。
func NewProcessor(invoker Invoker, cfg ProcessorConfig, notifier Notifier) *Processor {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Processor{invoker: invoker, cfg: cfg, notifier: notifier}
}

// Process 转换一个文件并返回其结果，永远不会返回 nil。
// 任何步骤的错误都只记录在结果中，结束时间和成功/失败状态在 defer 中恰好设置一次。
func (p *Processor) Process(ctx context.Context, inputPath string) (result *model.ConversionResult) {
	if abs, err := filepath.Abs(inputPath); err == nil {
		inputPath = abs
	}
	result = &model.ConversionResult{
		ID:            uuid.NewString(),
		InputFilePath: inputPath,
		StartTime:     time.Now(),
		OutputFiles:   []string{},
	}
	result.OutputDirectory = filepath.Join(p.cfg.OutputDir, result.ID)
	if abs, err := filepath.Abs(result.OutputDirectory); err == nil {
		result.OutputDirectory = abs
	}

	log.Infof("[Processor] 开始处理文件, ID: %s, File: %s", result.ID, inputPath)
	p.notifier.Notify(Event{Type: EventUnitStarted, ResultID: result.ID, InputFile: inputPath, Timestamp: result.StartTime})

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during conversion: %v", r)
		}
		result.Finalize(time.Now(), err)
		if result.IsSuccess {
			log.Infof("[Processor] 文件处理成功, ID: %s, 输出文件数: %d, 耗时: %s", result.ID, len(result.OutputFiles), result.Duration())
		} else {
			log.Errorf("[Processor] 文件处理失败, ID: %s, File: %s, Error: %s", result.ID, inputPath, result.ErrorMessage)
		}
		p.notifier.Notify(Event{Type: EventUnitFinished, ResultID: result.ID, InputFile: inputPath, Result: result, Timestamp: result.EndTime})
	}()

	err = p.process(ctx, result)
	return result
}

func (p *Processor) process(ctx context.Context, result *model.ConversionResult) error {
	// 1. 获取文件大小
	info, err := os.Stat(result.InputFilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFoundf("input file %s", result.InputFilePath)
		}
		return ioFailure("stat input file", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: input %s is a directory", ErrIOFailure, result.InputFilePath)
	}
	result.InputFileSizeBytes = info.Size()
	log.Infof("[Processor] 步骤1: 文件大小 %d 字节, 分块阈值 %d MB", result.InputFileSizeBytes, p.cfg.ChunkThresholdMB)

	// 2. 根据阈值选择直接转换或分块转换
	if !NeedsChunking(result.InputFileSizeBytes, p.cfg.ChunkThresholdMB) {
		return p.convertDirect(ctx, result)
	}
	return p.convertChunked(ctx, result)
}

func (p *Processor) convertDirect(ctx context.Context, result *model.ConversionResult) error {
	log.Infof("[Processor] 步骤2: 直接转换, 输出目录: %s", result.OutputDirectory)
	if err := os.MkdirAll(result.OutputDirectory, 0755); err != nil {
		return ioFailure("create output directory", err)
	}
	if err := p.invoker.Run(ctx, result.InputFilePath, result.OutputDirectory, p.lineHandler(result, "")); err != nil {
		return err
	}
	files, err := listFiles(result.OutputDirectory)
	if err != nil {
		return err
	}
	result.OutputFiles = append(result.OutputFiles, files...)
	return nil
}

func (p *Processor) convertChunked(ctx context.Context, result *model.ConversionResult) error {
	thresholdBytes := ThresholdBytes(p.cfg.ChunkThresholdMB)
	chunks := PlanChunks(result.InputFileSizeBytes, thresholdBytes)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: chunk threshold must be positive, got %d MB", ErrConfiguration, p.cfg.ChunkThresholdMB)
	}
	log.Infof("[Processor] 步骤2: 文件超过阈值, 分为 %d 个分块顺序处理", len(chunks))
	if err := os.MkdirAll(result.OutputDirectory, 0755); err != nil {
		return ioFailure("create output directory", err)
	}

	// 分块必须顺序处理，同一时间只有一个临时分块文件落盘
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("conversion cancelled before chunk %s: %w", chunks[i].ID, err)
		}
		chunks[i].TempFilePath = p.tempPath(result.InputFilePath, chunks[i].ID)
		if err := p.convertChunk(ctx, result, chunks[i], len(chunks)); err != nil {
			return fmt.Errorf("chunk %s (%d/%d) failed: %w", chunks[i].ID, i+1, len(chunks), err)
		}
	}

	// 3. 写入合并元数据
	return p.writeMergeMetadata(result, len(chunks))
}

func (p *Processor) convertChunk(ctx context.Context, result *model.ConversionResult, chunk model.FileChunk, total int) error {
	log.Infof("[Processor] 正在处理分块 %s (%d 字节), ID: %s", chunk.ID, chunk.Size(), result.ID)
	p.notifier.Notify(Event{
		Type:       EventChunkStarted,
		ResultID:   result.ID,
		InputFile:  result.InputFilePath,
		ChunkID:    chunk.ID,
		ChunkTotal: total,
		Timestamp:  time.Now(),
	})

	// 无论成功与否，分块转换结束后立即删除临时文件
	defer func() {
		if err := os.Remove(chunk.TempFilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warnf("[Processor] 删除临时分块文件失败: %s, err=%v", chunk.TempFilePath, err)
		}
	}()

	written, err := ExtractChunk(result.InputFilePath, chunk)
	if err != nil {
		return err
	}
	if written < chunk.Size() {
		log.Warnf("[Processor] 分块 %s 提前遇到 EOF, 期望 %d 字节, 实际 %d 字节", chunk.ID, chunk.Size(), written)
	}

	chunkDir := filepath.Join(result.OutputDirectory, "chunk_"+chunk.ID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return ioFailure("create chunk output directory", err)
	}
	if err := p.invoker.Run(ctx, chunk.TempFilePath, chunkDir, p.lineHandler(result, chunk.ID)); err != nil {
		return err
	}
	files, err := listFiles(chunkDir)
	if err != nil {
		return err
	}
	result.OutputFiles = append(result.OutputFiles, files...)
	return nil
}

func (p *Processor) writeMergeMetadata(result *model.ConversionResult, chunkCount int) error {
	meta := model.MergeMetadata{
		ConversionID:    result.ID,
		SourceFile:      result.InputFilePath,
		ChunkCount:      chunkCount,
		OutputFileCount: len(result.OutputFiles),
		MergedAt:        model.LocalTime(time.Now()),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal merge metadata: %w", err)
	}
	path := filepath.Join(result.OutputDirectory, model.MergeMetadataFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return ioFailure("write merge metadata", err)
	}
	result.OutputFiles = append(result.OutputFiles, path)
	log.Infof("[Processor] 步骤3: 合并元数据已写入 %s", path)
	return nil
}

// tempPath 生成分块临时文件路径，包含随机部分以避免并发文件之间冲突。
func (p *Processor) tempPath(inputPath, chunkID string) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s_chunk_%s_%s%s", name, chunkID, suffix, ext))
}

func (p *Processor) lineHandler(result *model.ConversionResult, chunkID string) LineHandler {
	return func(stream, line string) {
		p.notifier.Notify(Event{
			Type:      EventOutput,
			ResultID:  result.ID,
			InputFile: result.InputFilePath,
			ChunkID:   chunkID,
			Stream:    stream,
			Line:      line,
			Timestamp: time.Now(),
		})
	}
}

// listFiles 递归列出目录下的所有普通文件。
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, ioFailure("list output directory", err)
	}
	return files, nil
}
