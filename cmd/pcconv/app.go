package main

import (
	"context"
	"fmt"

	"pcconv-go/internal/config"
	"pcconv-go/internal/pipeline"
	"pcconv-go/internal/repository"
	"pcconv-go/internal/service"
	"pcconv-go/internal/workspace"
	"pcconv-go/pkg/database"
	"pcconv-go/pkg/es"
	"pcconv-go/pkg/kafka"
	"pcconv-go/pkg/log"
	"pcconv-go/pkg/storage"
)

// app 持有一次进程运行中组装好的组件。
type app struct {
	batchService service.BatchService
	hub          *service.ProgressHub
	closers      []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp 根据配置组装 BatchService。启用的外部组件初始化失败时记录错误并退回内存实现。
func buildApp(ctx context.Context, cfg config.Config, notifiers ...pipeline.Notifier) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrConfiguration, err)
	}
	ws, err := workspace.New(cfg.Paths, cfg.Converter.InputExtension)
	if err != nil {
		return nil, err
	}

	a := &app{hub: service.NewProgressHub()}
	deps := service.BatchDeps{
		Converter: cfg.Converter,
		Workspace: ws,
		Invoker:   pipeline.NewExecInvoker(cfg.Converter.Path, cfg.Converter.Timeout),
		Gate:      pipeline.NewGate(cfg.Converter.MaxConcurrentProcesses),
		Notifier:  pipeline.MultiNotifier(append([]pipeline.Notifier{a.hub}, notifiers...)...),
	}

	// 1. 批次历史 (MySQL)
	if cfg.Database.MySQL.Enabled {
		if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
			log.Error("MySQL 初始化失败, 批次历史仅保存在内存中", err)
		} else {
			deps.History = repository.NewHistoryRepository(database.DB)
			a.closers = append(a.closers, database.CloseMySQL)
		}
	}

	// 2. 进度与运行锁 (Redis)
	if cfg.Database.Redis.Enabled {
		if err := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB); err != nil {
			log.Error("Redis 初始化失败, 运行锁仅在当前进程内有效", err)
		} else {
			deps.Progress = repository.NewProgressRepository(database.RDB)
			a.closers = append(a.closers, database.CloseRedis)
		}
	}

	// 3. 产物上传 (MinIO)
	if cfg.MinIO.Enabled {
		uploader, err := storage.NewUploader(ctx, cfg.MinIO)
		if err != nil {
			log.Error("MinIO 初始化失败, 转换产物不会上传", err)
		} else {
			deps.Uploader = uploader
		}
	}

	// 4. 结果索引 (Elasticsearch)
	if cfg.Elasticsearch.Enabled {
		indexer, err := es.NewIndexer(cfg.Elasticsearch)
		if err != nil {
			log.Errorf("es 初始化失败 %s", err)
		} else {
			deps.Indexer = indexer
		}
	}

	// 5. 事件 (Kafka)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		deps.Publisher = producer
		a.closers = append(a.closers, func() {
			if err := producer.Close(); err != nil {
				log.Warnf("关闭 Kafka 生产者失败: %v", err)
			}
		})
	}

	a.batchService = service.NewBatchService(deps)
	return a, nil
}
