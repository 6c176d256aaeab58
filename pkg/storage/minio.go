// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"convai-builder-go/internal/config"
	"convai-builder-go/pkg/log"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// AudioStore 在存储桶中保存合成的语音文件。
type AudioStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewAudioStore 创建 AudioStore，预签名链接有效期来自配置。
func NewAudioStore(client *minio.Client, cfg config.MinIOConfig) *AudioStore {
	expiry := time.Duration(cfg.PresignExpiryMinutes) * time.Minute
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &AudioStore{client: client, bucket: cfg.BucketName, expiry: expiry}
}

// Put 上传一个对象。
func (s *AudioStore) Put(ctx context.Context, objectName string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectName, err)
	}
	return nil
}

// PresignedURL generates a presigned URL for a given object.
func (s *AudioStore) PresignedURL(ctx context.Context, objectName string) (string, error) {
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, s.expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}

// Remove 删除一组对象，单个失败不影响其他对象。
func (s *AudioStore) Remove(ctx context.Context, objectNames []string) error {
	var errs []error
	for _, name := range objectNames {
		if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ListOlderThan 列出前缀下最后修改时间早于 cutoff 的对象。
func (s *AudioStore) ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return names, obj.Err
		}
		if obj.LastModified.Before(cutoff) {
			names = append(names, obj.Key)
		}
	}
	return names, nil
}
