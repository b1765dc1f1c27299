package repository

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"pcconv-go/internal/model"
)

// ErrLockHeld 表示已经有另一个批次持有运行锁。
var ErrLockHeld = errors.New("run lock is held by another batch")

const (
	runLockKey     = "pcconv:run-lock"
	progressTTL    = 24 * time.Hour
	progressPrefix = "pcconv:batch:"
)

// releaseLockScript 只在锁仍属于当前批次时删除。
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// ProgressRepository 管理运行锁和批次的实时进度。
type ProgressRepository interface {
	// AcquireRunLock 获取全局运行锁，同一时间只允许一个批次使用临时目录。
	AcquireRunLock(ctx context.Context, batchID string, ttl time.Duration) error
	ReleaseRunLock(ctx context.Context, batchID string) error
	InitBatch(ctx context.Context, batchID string, total int) error
	RecordResult(ctx context.Context, batchID string, success bool) error
	FinishBatch(ctx context.Context, batchID string) error
	GetProgress(ctx context.Context, batchID string) (*model.BatchProgress, error)
}

// progressRepository 是 ProgressRepository 接口的 Redis 实现。
// 每个批次的进度保存在一个 hash 中，字段为 total/completed/succeeded/failed/running。
type progressRepository struct {
	redisClient *redis.Client
}

// NewProgressRepository 创建一个新的 ProgressRepository 实例。
func NewProgressRepository(redisClient *redis.Client) ProgressRepository {
	return &progressRepository{redisClient: redisClient}
}

func (r *progressRepository) progressKey(batchID string) string {
	return progressPrefix + batchID
}

func (r *progressRepository) AcquireRunLock(ctx context.Context, batchID string, ttl time.Duration) error {
	ok, err := r.redisClient.SetNX(ctx, runLockKey, batchID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

func (r *progressRepository) ReleaseRunLock(ctx context.Context, batchID string) error {
	return releaseLockScript.Run(ctx, r.redisClient, []string{runLockKey}, batchID).Err()
}

func (r *progressRepository) InitBatch(ctx context.Context, batchID string, total int) error {
	key := r.progressKey(batchID)
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"total":     total,
		"completed": 0,
		"succeeded": 0,
		"failed":    0,
		"running":   1,
	})
	pipe.Expire(ctx, key, progressTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *progressRepository) RecordResult(ctx context.Context, batchID string, success bool) error {
	key := r.progressKey(batchID)
	field := "failed"
	if success {
		field = "succeeded"
	}
	pipe := r.redisClient.TxPipeline()
	pipe.HIncrBy(ctx, key, "completed", 1)
	pipe.HIncrBy(ctx, key, field, 1)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *progressRepository) FinishBatch(ctx context.Context, batchID string) error {
	return r.redisClient.HSet(ctx, r.progressKey(batchID), "running", 0).Err()
}

func (r *progressRepository) GetProgress(ctx context.Context, batchID string) (*model.BatchProgress, error) {
	values, err := r.redisClient.HGetAll(ctx, r.progressKey(batchID)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrBatchNotFound
	}
	atoi := func(field string) int {
		n, _ := strconv.Atoi(values[field])
		return n
	}
	return &model.BatchProgress{
		BatchID:   batchID,
		Total:     atoi("total"),
		Completed: atoi("completed"),
		Succeeded: atoi("succeeded"),
		Failed:    atoi("failed"),
		Running:   values["running"] == "1",
	}, nil
}

// memoryProgressRepository 在未启用 Redis 时使用，锁只在当前进程内有效。
type memoryProgressRepository struct {
	mu       sync.Mutex
	lockedBy string
	progress map[string]*model.BatchProgress
}

// NewMemoryProgressRepository 创建一个基于内存的 ProgressRepository。
func NewMemoryProgressRepository() ProgressRepository {
	return &memoryProgressRepository{progress: make(map[string]*model.BatchProgress)}
}

func (r *memoryProgressRepository) AcquireRunLock(_ context.Context, batchID string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockedBy != "" {
		return ErrLockHeld
	}
	r.lockedBy = batchID
	return nil
}

func (r *memoryProgressRepository) ReleaseRunLock(_ context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockedBy == batchID {
		r.lockedBy = ""
	}
	return nil
}

func (r *memoryProgressRepository) InitBatch(_ context.Context, batchID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[batchID] = &model.BatchProgress{BatchID: batchID, Total: total, Running: true}
	return nil
}

func (r *memoryProgressRepository) RecordResult(_ context.Context, batchID string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progress[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	p.Completed++
	if success {
		p.Succeeded++
	} else {
		p.Failed++
	}
	return nil
}

func (r *memoryProgressRepository) FinishBatch(_ context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.progress[batchID]; ok {
		p.Running = false
	}
	return nil
}

func (r *memoryProgressRepository) GetProgress(_ context.Context, batchID string) (*model.BatchProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progress[batchID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	cp := *p
	return &cp, nil
}
