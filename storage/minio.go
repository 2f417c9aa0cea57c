package storage

import (
	"context"
	"fmt"
	"time"

	"echowall/config"
	"echowall/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// 已发布片段的异步归档备份。归档只是灾备用途：
// 播放永远读本地目录，归档失败只记日志不影响上传结果。

const archivePrefix = "clips/"

var (
	minioClient *minio.Client
	bucket      string
)

// InitMinio 初始化MinIO客户端。MINIO_ENDPOINT未配置时归档功能禁用。
func InitMinio(cfg *config.Config) error {
	if cfg.MinioEndpoint == "" {
		logger.Info("未配置MinIO，片段归档已禁用")
		return nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		logger.Info("归档存储桶已创建", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	bucket = cfg.MinioBucket
	logger.Info("MinIO连接成功",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return nil
}

// Enabled 归档是否可用
func Enabled() bool {
	return minioClient != nil
}

// ArchiveClip 把一个已发布片段上传到归档桶，调用方应在goroutine中调用
func ArchiveClip(clipID, localPath string) {
	if minioClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := minioClient.FPutObject(ctx, bucket, archivePrefix+clipID, localPath, minio.PutObjectOptions{
		ContentType: "audio/mpeg",
	})
	if err != nil {
		logger.Warn("片段归档失败",
			logger.String("clipId", clipID),
			logger.ErrorField(err))
		return
	}
	logger.Debug("片段已归档", logger.String("clipId", clipID))
}

// ClearArchive 删除归档桶里所有片段对象，配合目录清空使用
func ClearArchive(ctx context.Context) {
	if minioClient == nil {
		return
	}

	objects := minioClient.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    archivePrefix,
		Recursive: true,
	})

	for result := range minioClient.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			logger.Warn("删除归档对象失败",
				logger.String("object", result.ObjectName),
				logger.ErrorField(result.Err))
		}
	}
	logger.Info("归档已清空", logger.String("bucket", bucket))
}
