// Package service 包含了批处理的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"pcconv-go/internal/config"
	"pcconv-go/internal/model"
	"pcconv-go/internal/pipeline"
	"pcconv-go/internal/repository"
	"pcconv-go/internal/workspace"
	"pcconv-go/pkg/events"
	"pcconv-go/pkg/log"
)

// ErrBatchRunning 表示已经有一个批次在运行。
var ErrBatchRunning = errors.New("a batch is already running")

// runLockTTL 是运行锁的最长持有时间，进程异常退出后锁会自动过期。
const runLockTTL = 12 * time.Hour

// sinkTimeout 限制单个外部存储操作的时长。
const sinkTimeout = 30 * time.Second

// downloadLinkTTL 是下载链接的有效期。
const downloadLinkTTL = time.Hour

// ResultUploader 上传单个结果的输出文件并生成下载链接，*storage.Uploader 实现了它。
type ResultUploader interface {
	UploadResult(ctx context.Context, batchID string, r *model.ConversionResult) (int, error)
	ResultLinks(ctx context.Context, batchID string, r *model.ConversionResult, expiry time.Duration) ([]string, error)
}

// EventPublisher 发布批处理事件，*kafka.Producer 实现了它。
type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.ConversionEvent) error
}

// ResultIndexer 把结果写入搜索索引，*es.Indexer 实现了它。
type ResultIndexer interface {
	IndexResult(ctx context.Context, doc model.EsResultDocument) error
}

// BatchService 接口定义了批处理相关的业务操作。
type BatchService interface {
	// Run 同步执行一个批次。names 为空时处理输入目录中的全部文件。
	Run(ctx context.Context, batchID string, names []string) (*model.BatchReport, error)
	// Submit 获取运行锁后在后台执行批次，立即返回批次 ID。
	Submit(names []string) (string, error)
	ListBatches(ctx context.Context, limit int) ([]model.BatchRecord, error)
	// GetBatch 返回已完成批次的报告，启用对象存储时附带输出文件的下载链接。
	GetBatch(ctx context.Context, batchID string) (*model.BatchReport, error)
	GetProgress(ctx context.Context, batchID string) (*model.BatchProgress, error)
	// Shutdown 取消后台批次并等待其结束。
	Shutdown(ctx context.Context) error
}

// BatchDeps 汇总 BatchService 的依赖。Uploader、Publisher、Indexer 和 Notifier 可以为 nil。
type BatchDeps struct {
	Converter config.ConverterConfig
	Workspace *workspace.Workspace
	Invoker   pipeline.Invoker
	Gate      *semaphore.Weighted
	History   repository.HistoryRepository
	Progress  repository.ProgressRepository
	Notifier  pipeline.Notifier
	Uploader  ResultUploader
	Publisher EventPublisher
	Indexer   ResultIndexer
}

type batchService struct {
	deps BatchDeps

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewBatchService 创建一个新的 BatchService 实例。
func NewBatchService(deps BatchDeps) BatchService {
	if deps.Gate == nil {
		deps.Gate = pipeline.NewGate(deps.Converter.MaxConcurrentProcesses)
	}
	if deps.History == nil {
		deps.History = repository.NewMemoryHistoryRepository()
	}
	if deps.Progress == nil {
		deps.Progress = repository.NewMemoryProgressRepository()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &batchService{deps: deps, baseCtx: ctx, cancel: cancel}
}

// NewBatchID 生成一个新的批次 ID。
func NewBatchID() string {
	return uuid.NewString()
}

func (s *batchService) Run(ctx context.Context, batchID string, names []string) (*model.BatchReport, error) {
	if err := s.precheck(); err != nil {
		return nil, err
	}
	if err := s.lock(ctx, batchID); err != nil {
		return nil, err
	}
	defer s.unlock(batchID)
	return s.run(ctx, batchID, names)
}

func (s *batchService) Submit(names []string) (string, error) {
	if err := s.precheck(); err != nil {
		return "", err
	}
	batchID := NewBatchID()
	if err := s.lock(s.baseCtx, batchID); err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unlock(batchID)
		if _, err := s.run(s.baseCtx, batchID, names); err != nil {
			log.Errorf("[BatchService] 后台批次执行失败, BatchID: %s, Error: %v", batchID, err)
		}
	}()
	return batchID, nil
}

func (s *batchService) ListBatches(ctx context.Context, limit int) ([]model.BatchRecord, error) {
	return s.deps.History.ListBatches(ctx, limit)
}

func (s *batchService) GetBatch(ctx context.Context, batchID string) (*model.BatchReport, error) {
	report, err := s.deps.History.FindBatch(ctx, batchID)
	if err != nil || s.deps.Uploader == nil {
		return report, err
	}

	// 历史仓库可能返回共享的报告，链接只加在副本上
	withLinks := *report
	withLinks.Downloads = make(map[string][]string)
	for _, r := range report.Results {
		links, err := s.deps.Uploader.ResultLinks(ctx, batchID, r, downloadLinkTTL)
		if err != nil {
			log.Warnf("[BatchService] 生成下载链接失败, ResultID: %s, err=%v", r.ID, err)
			continue
		}
		if len(links) > 0 {
			withLinks.Downloads[r.ID] = links
		}
	}
	return &withLinks, nil
}

func (s *batchService) GetProgress(ctx context.Context, batchID string) (*model.BatchProgress, error) {
	return s.deps.Progress.GetProgress(ctx, batchID)
}

func (s *batchService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// precheck 在获取锁之前确认转换程序存在。
func (s *batchService) precheck() error {
	if err := pipeline.CheckConverter(s.deps.Converter.Path); err != nil {
		log.Errorf("[BatchService] 转换程序检查失败: %v", err)
		return err
	}
	return nil
}

func (s *batchService) lock(ctx context.Context, batchID string) error {
	if err := s.deps.Progress.AcquireRunLock(ctx, batchID, runLockTTL); err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			return ErrBatchRunning
		}
		return fmt.Errorf("acquire run lock: %w", err)
	}
	return nil
}

func (s *batchService) unlock(batchID string) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := s.deps.Progress.ReleaseRunLock(ctx, batchID); err != nil {
		log.Warnf("[BatchService] 释放运行锁失败, BatchID: %s, err=%v", batchID, err)
	}
}

// run 在持有运行锁的前提下执行一个批次。
func (s *batchService) run(ctx context.Context, batchID string, names []string) (*model.BatchReport, error) {
	ws := s.deps.Workspace
	log.Infof("[BatchService] 开始批次, BatchID: %s", batchID)

	// 1. 准备目录并清理上次运行残留的临时文件
	if err := ws.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrIOFailure, err)
	}
	if _, err := ws.PurgeTempArea(); err != nil {
		log.Warnf("[BatchService] 清理临时目录失败: %v", err)
	}
	defer func() {
		if _, err := ws.PurgeTempArea(); err != nil {
			log.Warnf("[BatchService] 清理临时目录失败: %v", err)
		}
	}()

	// 2. 确定要处理的文件
	files, err := ws.ListInputFiles()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrIOFailure, err)
	}
	var unmatched []string
	if len(names) > 0 {
		files, unmatched = workspace.MatchFiles(files, names)
		for _, name := range unmatched {
			log.Warnf("[BatchService] 输入目录中找不到文件, 已跳过: %s", name)
		}
	}
	log.Infof("[BatchService] 步骤2: 待处理文件 %d 个", len(files))

	if err := s.deps.Progress.InitBatch(ctx, batchID, len(files)); err != nil {
		log.Warnf("[BatchService] 初始化批次进度失败: %v", err)
	}
	s.publish(events.BatchStarted(batchID, len(files)))

	// 3. 并发处理
	notifier := pipeline.MultiNotifier(s.deps.Notifier, s.resultRecorder(batchID))
	processor := pipeline.NewProcessor(s.deps.Invoker, pipeline.ProcessorConfig{
		OutputDir:        ws.OutputDir,
		TempDir:          ws.TempDir,
		ChunkThresholdMB: s.deps.Converter.ChunkThresholdMB,
	}, notifier)
	start := time.Now()
	results := pipeline.NewOrchestrator(processor, s.deps.Gate).RunBatch(ctx, files)
	report := model.NewBatchReport(batchID, start, time.Now(), results)
	report.Unmatched = unmatched

	// 4. 写入结果文件
	if path, err := WriteArtifact(ws.OutputDir, report); err != nil {
		log.Error("[BatchService] 写入批次结果文件失败", err)
	} else {
		report.ArtifactPath = path
	}

	// 5. 外部存储，失败只记录日志
	if err := s.persist(report); err != nil {
		log.Warnf("[BatchService] 部分外部存储写入失败: %v", err)
	}

	log.Infof("[BatchService] 批次完成, BatchID: %s, 成功: %d, 失败: %d, 耗时: %dms",
		batchID, report.Succeeded, report.Failed, report.DurationMs)
	return report, nil
}

// resultRecorder 在每个文件完成时更新进度并发布事件。
func (s *batchService) resultRecorder(batchID string) pipeline.Notifier {
	return pipeline.NotifierFunc(func(e pipeline.Event) {
		if e.Type != pipeline.EventUnitFinished || e.Result == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := s.deps.Progress.RecordResult(ctx, batchID, e.Result.IsSuccess); err != nil {
			log.Warnf("[BatchService] 更新批次进度失败: %v", err)
		}
		s.publish(events.FileFinished(batchID, e.Result))
	})
}

func (s *batchService) publish(evts ...events.ConversionEvent) {
	if s.deps.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := s.deps.Publisher.Publish(ctx, evts...); err != nil {
		log.Warnf("[BatchService] 发布事件失败: %v", err)
	}
}

// persist 把批次写入历史、索引和对象存储，返回合并后的错误。
func (s *batchService) persist(report *model.BatchReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*sinkTimeout)
	defer cancel()

	var errs []error
	if err := s.deps.Progress.FinishBatch(ctx, report.BatchID); err != nil {
		errs = append(errs, fmt.Errorf("progress: %w", err))
	}
	if err := s.deps.History.SaveBatch(ctx, report); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}
	for _, r := range report.Results {
		if s.deps.Indexer != nil {
			if err := s.deps.Indexer.IndexResult(ctx, model.NewEsResultDocument(report.BatchID, r)); err != nil {
				errs = append(errs, fmt.Errorf("index %s: %w", r.ID, err))
			}
		}
		if s.deps.Uploader != nil {
			if _, err := s.deps.Uploader.UploadResult(ctx, report.BatchID, r); err != nil {
				errs = append(errs, fmt.Errorf("upload %s: %w", r.ID, err))
			}
		}
	}
	s.publish(events.BatchFinished(report))
	return errors.Join(errs...)
}

// ArtifactName 返回批次结果文件名：batch_results_<yyyyMMdd_HHmmss>.json
func ArtifactName(t time.Time) string {
	return "batch_results_" + t.Format("20060102_150405") + ".json"
}

// WriteArtifact 把按输入顺序排列的结果列表写入输出根目录。
func WriteArtifact(outputDir string, report *model.BatchReport) (string, error) {
	data, err := json.MarshalIndent(report.Results, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, ArtifactName(report.EndTime))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	log.Infof("[BatchService] 批次结果已写入 %s", path)
	return path, nil
}
