package gateway

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored output.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// StorageGateway 存储网关
type StorageGateway interface {
	// UploadOutput 上传产物文件，返回对象 key
	UploadOutput(ctx context.Context, localPath, objectKey, contentType string) (string, error)
	// PutInput 保存上传的待转换文件
	PutInput(ctx context.Context, r io.Reader, size int64, objectKey, contentType string) error
	// DownloadInput 下载待转换的输入文件到本地
	DownloadInput(ctx context.Context, objectKey, localPath string) error
	// OpenOutput streams a stored output; callers close the reader.
	OpenOutput(ctx context.Context, objectKey string) (io.ReadCloser, ObjectInfo, error)
	// RemoveOutput 删除过期产物
	RemoveOutput(ctx context.Context, objectKey string) error
}
