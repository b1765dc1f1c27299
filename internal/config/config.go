// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid 表示配置缺失或取值非法，属于启动期的致命错误。
var ErrInvalid = errors.New("invalid configuration")

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Converter     ConverterConfig     `mapstructure:"converter"`
	Paths         PathsConfig         `mapstructure:"paths"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
}

// ConverterConfig 描述外部转换程序以及分块、并发参数。
type ConverterConfig struct {
	Path                   string        `mapstructure:"path"`
	ChunkThresholdMB       int64         `mapstructure:"chunk_threshold_mb"`
	MaxConcurrentProcesses int           `mapstructure:"max_concurrent_processes"`
	InputExtension         string        `mapstructure:"input_extension"`
	Timeout                time.Duration `mapstructure:"timeout"` // 0 表示不限时
}

// PathsConfig 存储输入、输出、临时目录。
type PathsConfig struct {
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
	TempDir   string `mapstructure:"temp_dir"`
}

// ServerConfig 存储 HTTP 控制接口相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置，用于保存批次历史。
type MySQLConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置，用于批次进度与运行锁。
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 API 令牌相关的配置。
type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	TokenExpireHours int    `mapstructure:"token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置，用于上传转换产物。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// Validate 检查运行批处理所必需的配置项。
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Converter.Path) == "" {
		errs = append(errs, errors.New("converter.path is not set"))
	}
	if c.Converter.ChunkThresholdMB <= 0 {
		errs = append(errs, fmt.Errorf("converter.chunk_threshold_mb must be positive, got %d", c.Converter.ChunkThresholdMB))
	}
	if c.Converter.MaxConcurrentProcesses <= 0 {
		errs = append(errs, fmt.Errorf("converter.max_concurrent_processes must be positive, got %d", c.Converter.MaxConcurrentProcesses))
	}
	if c.Converter.Timeout < 0 {
		errs = append(errs, errors.New("converter.timeout must not be negative"))
	}
	if c.Paths.InputDir == "" || c.Paths.OutputDir == "" || c.Paths.TempDir == "" {
		errs = append(errs, errors.New("paths.input_dir, paths.output_dir and paths.temp_dir are required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// setDefaults 注册默认值，配置文件缺省时生效。
func setDefaults(v *viper.Viper) {
	// 空字符串默认值让 viper 认识这些键，环境变量才能覆盖
	v.SetDefault("converter.path", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "")
	v.SetDefault("converter.chunk_threshold_mb", 100)
	v.SetDefault("converter.max_concurrent_processes", 2)
	v.SetDefault("converter.input_extension", ".las")
	v.SetDefault("converter.timeout", "0s")
	v.SetDefault("paths.input_dir", "./data/input")
	v.SetDefault("paths.output_dir", "./data/output")
	v.SetDefault("paths.temp_dir", "./data/temp")
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("jwt.token_expire_hours", 24)
	v.SetDefault("kafka.topic", "pointcloud-conversions")
	v.SetDefault("elasticsearch.index_name", "conversion_results")
	v.SetDefault("minio.bucket_name", "pointcloud-output")
}

// Load 从指定路径读取 YAML 配置，环境变量（前缀 PCCONV_）优先。
// configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PCCONV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 加载配置到全局变量 Conf，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
