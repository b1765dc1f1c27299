package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pcconv-go/pkg/log"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接，用于批处理进度和运行锁。
func InitRedis(addr, password string, db int) error {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis %s: %w", addr, err)
	}

	RDB = client
	log.Info("Redis client connected successfully")
	return nil
}

// CloseRedis 关闭 Redis 客户端，未初始化时什么也不做。
func CloseRedis() {
	if RDB != nil {
		_ = RDB.Close()
	}
}
