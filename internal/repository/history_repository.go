// Package repository 定义了批处理历史和进度的持久化接口和实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"pcconv-go/internal/model"
)

// ErrBatchNotFound 表示指定的批次不存在。
var ErrBatchNotFound = errors.New("batch not found")

// HistoryRepository 保存已完成批次的汇总和逐文件结果。
type HistoryRepository interface {
	SaveBatch(ctx context.Context, report *model.BatchReport) error
	// ListBatches 按开始时间倒序返回最近的批次，limit <= 0 表示不限制。
	ListBatches(ctx context.Context, limit int) ([]model.BatchRecord, error)
	FindBatch(ctx context.Context, batchID string) (*model.BatchReport, error)
}

// historyRepository 是 HistoryRepository 接口的 GORM 实现。
type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository 创建一个新的 HistoryRepository 实例。
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// SaveBatch 在一个事务中写入批次记录和全部结果记录。
func (r *historyRepository) SaveBatch(ctx context.Context, report *model.BatchReport) error {
	records := make([]*model.ConversionRecord, 0, len(report.Results))
	for i, res := range report.Results {
		rec, err := model.NewConversionRecord(report.BatchID, i, res)
		if err != nil {
			return fmt.Errorf("encode result %s: %w", res.ID, err)
		}
		records = append(records, rec)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch := &model.BatchRecord{
			BatchID:    report.BatchID,
			Total:      report.Total,
			Succeeded:  report.Succeeded,
			Failed:     report.Failed,
			StartTime:  report.StartTime,
			EndTime:    report.EndTime,
			DurationMs: report.DurationMs,
		}
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 100).Error
	})
}

// ListBatches 查询最近的批次记录。
func (r *historyRepository) ListBatches(ctx context.Context, limit int) ([]model.BatchRecord, error) {
	var batches []model.BatchRecord
	q := r.db.WithContext(ctx).Order("start_time desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&batches).Error
	return batches, err
}

// FindBatch 根据批次 ID 还原完整的批次报告。
func (r *historyRepository) FindBatch(ctx context.Context, batchID string) (*model.BatchReport, error) {
	var batch model.BatchRecord
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}

	var records []model.ConversionRecord
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("position asc").Find(&records).Error; err != nil {
		return nil, err
	}
	results := make([]*model.ConversionResult, 0, len(records))
	for i := range records {
		res, err := records[i].ToResult()
		if err != nil {
			return nil, fmt.Errorf("decode result %s: %w", records[i].ResultID, err)
		}
		results = append(results, res)
	}

	report := model.NewBatchReport(batch.BatchID, batch.StartTime, batch.EndTime, results)
	report.DurationMs = batch.DurationMs
	return report, nil
}

// memoryHistoryRepository 在未启用 MySQL 时使用，进程退出后历史丢失。
type memoryHistoryRepository struct {
	mu      sync.RWMutex
	reports map[string]*model.BatchReport
}

// NewMemoryHistoryRepository 创建一个基于内存的 HistoryRepository。
func NewMemoryHistoryRepository() HistoryRepository {
	return &memoryHistoryRepository{reports: make(map[string]*model.BatchReport)}
}

func (r *memoryHistoryRepository) SaveBatch(_ context.Context, report *model.BatchReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[report.BatchID]; ok {
		return fmt.Errorf("batch %s already saved", report.BatchID)
	}
	r.reports[report.BatchID] = report
	return nil
}

func (r *memoryHistoryRepository) ListBatches(_ context.Context, limit int) ([]model.BatchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	batches := make([]model.BatchRecord, 0, len(r.reports))
	for _, rep := range r.reports {
		batches = append(batches, model.BatchRecord{
			BatchID:    rep.BatchID,
			Total:      rep.Total,
			Succeeded:  rep.Succeeded,
			Failed:     rep.Failed,
			StartTime:  rep.StartTime,
			EndTime:    rep.EndTime,
			DurationMs: rep.DurationMs,
		})
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].StartTime.After(batches[j].StartTime)
	})
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

func (r *memoryHistoryRepository) FindBatch(_ context.Context, batchID string) (*model.BatchReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[batchID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return rep, nil
}
