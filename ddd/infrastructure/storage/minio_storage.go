package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"

	"medkit-service/ddd/domain/gateway"
	"medkit-service/pkg/logger"
)

// MinioStorage MinIO存储实现
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage 创建MinIO存储实例
func NewMinioStorage(client *minio.Client, bucket string) *MinioStorage {
	return &MinioStorage{client: client, bucket: bucket}
}

// UploadOutput 上传产物文件，返回对象路径
func (s *MinioStorage) UploadOutput(ctx context.Context, localPath, objectKey, contentType string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open local file failed: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("get file info failed: %w", err)
	}
	if contentType == "" {
		contentType = ContentTypeFor(objectKey)
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectKey, file, fileInfo.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("Failed to upload output to MinIO", map[string]interface{}{
			"local_path": localPath,
			"object_key": objectKey,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("upload output to minio failed: %w", err)
	}

	logger.Info("Output uploaded", map[string]interface{}{
		"object_key": objectKey,
		"size":       fileInfo.Size(),
	})
	return objectKey, nil
}

// PutInput 上传待转换的输入文件, size -1 streams until EOF.
func (s *MinioStorage) PutInput(ctx context.Context, r io.Reader, size int64, objectKey, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeFor(objectKey)
	}
	if _, err := s.client.PutObject(ctx, s.bucket, objectKey, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("upload input to minio failed: %w", err)
	}
	return nil
}

// DownloadInput 从MinIO下载文件到本地路径
func (s *MinioStorage) DownloadInput(ctx context.Context, objectKey, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create local directory failed: %w", err)
	}
	if err := s.client.FGetObject(ctx, s.bucket, objectKey, localPath, minio.GetObjectOptions{}); err != nil {
		logger.Error("Failed to download input from MinIO", map[string]interface{}{
			"object_key": objectKey,
			"error":      err.Error(),
		})
		return fmt.Errorf("download input from minio failed: %w", err)
	}
	return nil
}

// OpenOutput streams an object; the caller closes the reader.
func (s *MinioStorage) OpenOutput(ctx context.Context, objectKey string) (io.ReadCloser, gateway.ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, gateway.ObjectInfo{}, fmt.Errorf("%w: %s", gateway.ErrObjectNotFound, objectKey)
		}
		return nil, gateway.ObjectInfo{}, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, gateway.ObjectInfo{}, err
	}
	return obj, gateway.ObjectInfo{Key: objectKey, Size: stat.Size, ContentType: stat.ContentType}, nil
}

// RemoveOutput 删除对象, a missing object is not an error.
func (s *MinioStorage) RemoveOutput(ctx context.Context, objectKey string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return err
	}
	return nil
}

var _ gateway.StorageGateway = (*MinioStorage)(nil)
