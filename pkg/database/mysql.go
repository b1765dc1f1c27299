// Package database 负责初始化批处理历史使用的 MySQL 和 Redis 连接。
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pcconv-go/internal/model"
	"pcconv-go/pkg/log"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 连接并迁移批处理历史表。
func InitMySQL(dsn string) error {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("connect mysql: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&model.BatchRecord{}, &model.ConversionRecord{}); err != nil {
		return fmt.Errorf("migrate history tables: %w", err)
	}

	DB = db
	log.Info("MySQL database connected successfully")
	return nil
}

// CloseMySQL 关闭连接池，未初始化时什么也不做。
func CloseMySQL() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
