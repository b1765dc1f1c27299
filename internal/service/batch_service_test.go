package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcconv-go/internal/config"
	"pcconv-go/internal/model"
	"pcconv-go/internal/pipeline"
	"pcconv-go/internal/repository"
	"pcconv-go/internal/workspace"
	"pcconv-go/pkg/events"
)

// stubInvoker 在输出目录写一个文件；输入文件名包含 "bad" 时以退出码 1 失败。
type stubInvoker struct {
	mu     sync.Mutex
	inputs []string
}

func (s *stubInvoker) Run(_ context.Context, inputPath, outputDir string, _ pipeline.LineHandler) error {
	s.mu.Lock()
	s.inputs = append(s.inputs, inputPath)
	s.mu.Unlock()
	if strings.Contains(filepath.Base(inputPath), "bad") {
		return &pipeline.ProcessError{ExitCode: 1, Stderr: "corrupt header"}
	}
	return os.WriteFile(filepath.Join(outputDir, "cloud.js"), []byte("{}"), 0644)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ConversionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...events.ConversionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// linkUploader 记录上传的结果，为成功结果的每个输出文件返回一个固定格式的链接。
type linkUploader struct {
	mu       sync.Mutex
	uploaded []string
}

func (u *linkUploader) UploadResult(_ context.Context, _ string, r *model.ConversionResult) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploaded = append(u.uploaded, r.ID)
	return len(r.OutputFiles), nil
}

func (u *linkUploader) ResultLinks(_ context.Context, batchID string, r *model.ConversionResult, expiry time.Duration) ([]string, error) {
	if !r.IsSuccess {
		return nil, nil
	}
	var links []string
	for _, f := range r.OutputFiles {
		links = append(links, "https://store/"+batchID+"/"+r.ID+"/"+filepath.Base(f)+"?ttl="+expiry.String())
	}
	return links, nil
}

type failingIndexer struct{}

func (failingIndexer) IndexResult(context.Context, model.EsResultDocument) error {
	return errors.New("cluster unavailable")
}

type fixture struct {
	ws        *workspace.Workspace
	invoker   *stubInvoker
	progress  repository.ProgressRepository
	publisher *recordingPublisher
	svc       BatchService
}

func newFixture(t *testing.T, converterPath string) *fixture {
	t.Helper()
	root := t.TempDir()
	if converterPath == "" {
		converterPath = filepath.Join(root, "PotreeConverter")
		require.NoError(t, os.WriteFile(converterPath, []byte("#!/bin/sh\n"), 0755))
	}
	ws, err := workspace.New(config.PathsConfig{
		InputDir:  filepath.Join(root, "input"),
		OutputDir: filepath.Join(root, "output"),
		TempDir:   filepath.Join(root, "temp"),
	}, ".las")
	require.NoError(t, err)
	require.NoError(t, ws.EnsureDirectories())

	f := &fixture{
		ws:        ws,
		invoker:   &stubInvoker{},
		progress:  repository.NewMemoryProgressRepository(),
		publisher: &recordingPublisher{},
	}
	f.svc = NewBatchService(BatchDeps{
		Converter: config.ConverterConfig{
			Path:                   converterPath,
			ChunkThresholdMB:       100,
			MaxConcurrentProcesses: 2,
		},
		Workspace: ws,
		Invoker:   f.invoker,
		Progress:  f.progress,
		Publisher: f.publisher,
		Indexer:   failingIndexer{},
	})
	t.Cleanup(func() { _ = f.svc.Shutdown(context.Background()) })
	return f
}

func (f *fixture) input(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(f.ws.InputDir, n), []byte("points"), 0644))
	}
}

func TestBatchService_RunAll(t *testing.T) {
	f := newFixture(t, "")
	f.input(t, "a.las", "bad.las", "c.las", "readme.txt")
	// 上次运行残留的临时文件
	require.NoError(t, os.WriteFile(filepath.Join(f.ws.TempDir, "stale_chunk_000.las"), []byte("x"), 0644))

	report, err := f.svc.Run(context.Background(), "batch-1", nil)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, filepath.Join(f.ws.InputDir, "a.las"), report.Results[0].InputFilePath)
	assert.Equal(t, filepath.Join(f.ws.InputDir, "bad.las"), report.Results[1].InputFilePath)
	assert.False(t, report.Results[1].IsSuccess)
	assert.Contains(t, report.Results[1].ErrorMessage, "code 1")
	assert.Contains(t, report.Results[1].ErrorMessage, "corrupt header")
	assert.True(t, report.Results[2].IsSuccess)

	// 结果文件
	require.NotEmpty(t, report.ArtifactPath)
	assert.Equal(t, f.ws.OutputDir, filepath.Dir(report.ArtifactPath))
	assert.True(t, strings.HasPrefix(filepath.Base(report.ArtifactPath), "batch_results_"))
	data, err := os.ReadFile(report.ArtifactPath)
	require.NoError(t, err)
	var saved []model.ConversionResult
	require.NoError(t, json.Unmarshal(data, &saved))
	require.Len(t, saved, 3)
	assert.Equal(t, report.Results[0].ID, saved[0].ID)

	// 临时目录被清空
	entries, err := os.ReadDir(f.ws.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// 历史与进度
	stored, err := f.svc.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Succeeded)

	progress, err := f.svc.GetProgress(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Completed)
	assert.False(t, progress.Running)

	types := f.publisher.types()
	require.Len(t, types, 5)
	assert.Equal(t, events.TypeBatchStarted, types[0])
	assert.Equal(t, events.TypeBatchFinished, types[4])
}

func TestBatchService_MissingConverter(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "absent", "PotreeConverter"))
	f.input(t, "a.las")

	report, err := f.svc.Run(context.Background(), "batch-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
	assert.Nil(t, report)
	assert.Empty(t, f.invoker.inputs)

	_, err = f.svc.Submit(nil)
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
}

func TestBatchService_SelectedFiles(t *testing.T) {
	f := newFixture(t, "")
	f.input(t, "a.las", "b.las", "c.las")

	report, err := f.svc.Run(context.Background(), "batch-1", []string{"C.las", "a", "missing.las"})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, filepath.Join(f.ws.InputDir, "c.las"), report.Results[0].InputFilePath)
	assert.Equal(t, filepath.Join(f.ws.InputDir, "a.las"), report.Results[1].InputFilePath)
	assert.Equal(t, []string{"missing.las"}, report.Unmatched)
}

func TestBatchService_RejectsConcurrentBatch(t *testing.T) {
	f := newFixture(t, "")
	f.input(t, "a.las")
	require.NoError(t, f.progress.AcquireRunLock(context.Background(), "other", time.Minute))

	_, err := f.svc.Run(context.Background(), "batch-1", nil)
	assert.ErrorIs(t, err, ErrBatchRunning)
	_, err = f.svc.Submit(nil)
	assert.ErrorIs(t, err, ErrBatchRunning)

	require.NoError(t, f.progress.ReleaseRunLock(context.Background(), "other"))
	_, err = f.svc.Run(context.Background(), "batch-1", nil)
	assert.NoError(t, err)
}

func TestBatchService_Submit(t *testing.T) {
	f := newFixture(t, "")
	f.input(t, "a.las", "b.las")

	batchID, err := f.svc.Submit(nil)
	require.NoError(t, err)
	require.NotEmpty(t, batchID)

	require.Eventually(t, func() bool {
		_, err := f.svc.GetBatch(context.Background(), batchID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	report, err := f.svc.GetBatch(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	// 后台批次结束后锁已释放
	require.Eventually(t, func() bool {
		err := f.progress.AcquireRunLock(context.Background(), "probe", time.Minute)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBatchService_GetBatchWithDownloadLinks(t *testing.T) {
	f := newFixture(t, "")
	f.input(t, "a.las", "bad.las")
	uploader := &linkUploader{}
	f.svc = NewBatchService(BatchDeps{
		Converter: config.ConverterConfig{
			Path:                   filepath.Join(filepath.Dir(f.ws.InputDir), "PotreeConverter"),
			ChunkThresholdMB:       100,
			MaxConcurrentProcesses: 1,
		},
		Workspace: f.ws,
		Invoker:   f.invoker,
		Uploader:  uploader,
	})

	report, err := f.svc.Run(context.Background(), "batch-1", nil)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Len(t, uploader.uploaded, 2)
	assert.Nil(t, report.Downloads)

	got, err := f.svc.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	ok, failed := got.Results[0], got.Results[1]
	require.True(t, ok.IsSuccess)
	require.False(t, failed.IsSuccess)
	assert.Equal(t, map[string][]string{
		ok.ID: {"https://store/batch-1/" + ok.ID + "/cloud.js?ttl=1h0m0s"},
	}, got.Downloads)

	// 保存的报告本身不带链接
	assert.Nil(t, report.Downloads)

	_, err = f.svc.GetBatch(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrBatchNotFound)
}

func TestArtifactName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 3, 0, time.UTC)
	assert.Equal(t, "batch_results_20240309_070503.json", ArtifactName(ts))
}
