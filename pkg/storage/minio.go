// Package storage 提供了把转换产物上传到对象存储（MinIO）的功能。
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pcconv-go/internal/config"
	"pcconv-go/internal/model"
	"pcconv-go/pkg/log"
)

// Uploader 把一个转换结果的输出文件上传到存储桶。
type Uploader struct {
	client *minio.Client
	bucket string
}

// NewUploader 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewUploader(ctx context.Context, cfg config.MinIOConfig) (*Uploader, error) {
	// 1. 初始化 MinIO 客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶是否存在，如果不存在则创建
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
	return &Uploader{client: client, bucket: cfg.BucketName}, nil
}

// ObjectName 返回输出文件在存储桶中的对象名：<batchID>/<resultID>/<相对路径>。
func ObjectName(batchID string, r *model.ConversionResult, file string) (string, error) {
	rel, err := filepath.Rel(r.OutputDirectory, file)
	if err != nil {
		return "", err
	}
	return path.Join(batchID, r.ID, filepath.ToSlash(rel)), nil
}

// UploadResult 上传结果的全部输出文件，返回成功上传的数量。失败的结果直接跳过。
func (u *Uploader) UploadResult(ctx context.Context, batchID string, r *model.ConversionResult) (int, error) {
	if !r.IsSuccess {
		return 0, nil
	}
	uploaded := 0
	for _, file := range r.OutputFiles {
		object, err := ObjectName(batchID, r, file)
		if err != nil {
			return uploaded, fmt.Errorf("resolve object name for %s: %w", file, err)
		}
		if _, err := u.client.FPutObject(ctx, u.bucket, object, file, minio.PutObjectOptions{}); err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", object, err)
		}
		uploaded++
	}
	log.Infof("[Storage] 已上传 %d 个文件, ResultID: %s", uploaded, r.ID)
	return uploaded, nil
}

// ResultLinks 为成功结果的每个输出文件生成临时下载链接，顺序与 OutputFiles 一致。
func (u *Uploader) ResultLinks(ctx context.Context, batchID string, r *model.ConversionResult, expiry time.Duration) ([]string, error) {
	if !r.IsSuccess {
		return nil, nil
	}
	links := make([]string, 0, len(r.OutputFiles))
	for _, file := range r.OutputFiles {
		object, err := ObjectName(batchID, r, file)
		if err != nil {
			return nil, fmt.Errorf("resolve object name for %s: %w", file, err)
		}
		link, err := u.PresignedURL(ctx, object, expiry)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

// PresignedURL 生成对象的临时下载链接。
func (u *Uploader) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := u.client.PresignedGetObject(ctx, u.bucket, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}
