package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"medkit-service/ddd/domain/gateway"
)

var errEscapesRoot = errors.New("object key escapes storage root")

// LocalStorage keeps outputs on the local filesystem, used when MinIO is disabled.
type LocalStorage struct {
	root string
}

// NewLocalStorage 创建本地存储
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) path(objectKey string) (string, error) {
	clean := filepath.Clean("/" + objectKey)
	full := filepath.Join(s.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", errEscapesRoot
	}
	return full, nil
}

func (s *LocalStorage) UploadOutput(_ context.Context, localPath, objectKey, _ string) (string, error) {
	dst, err := s.path(objectKey)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	// rename when possible, copy across filesystems
	if err := os.Rename(localPath, dst); err == nil {
		return objectKey, nil
	}
	if err := copyFile(localPath, dst); err != nil {
		return "", fmt.Errorf("store output: %w", err)
	}
	return objectKey, nil
}

func (s *LocalStorage) PutInput(_ context.Context, r io.Reader, _ int64, objectKey, _ string) error {
	dst, err := s.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("store input: %w", err)
	}
	return out.Close()
}

func (s *LocalStorage) DownloadInput(_ context.Context, objectKey, localPath string) error {
	src, err := s.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	if err := copyFile(src, localPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", gateway.ErrObjectNotFound, objectKey)
		}
		return err
	}
	return nil
}

func (s *LocalStorage) OpenOutput(_ context.Context, objectKey string) (io.ReadCloser, gateway.ObjectInfo, error) {
	p, err := s.path(objectKey)
	if err != nil {
		return nil, gateway.ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, gateway.ObjectInfo{}, fmt.Errorf("%w: %s", gateway.ErrObjectNotFound, objectKey)
		}
		return nil, gateway.ObjectInfo{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, gateway.ObjectInfo{}, err
	}
	return f, gateway.ObjectInfo{Key: objectKey, Size: st.Size(), ContentType: ContentTypeFor(objectKey)}, nil
}

func (s *LocalStorage) RemoveOutput(_ context.Context, objectKey string) error {
	p, err := s.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// drop the per-job directory once empty
	_ = os.Remove(filepath.Dir(p))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var _ gateway.StorageGateway = (*LocalStorage)(nil)
