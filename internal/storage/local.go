package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

type LocalBackend struct {
	fs afero.Fs
}

// NewLocalBackend roots the backend at dir on the OS filesystem.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
	}
	return NewLocalBackendFs(afero.NewBasePathFs(osFs, dir)), nil
}

func NewLocalBackendFs(fs afero.Fs) *LocalBackend {
	return &LocalBackend{fs: fs}
}

func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.fs.MkdirAll(path.Dir(key), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := b.fs.Create(key)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		b.fs.Remove(key)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return f.Close()
}

func (b *LocalBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := b.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete is a no-op for missing keys.
func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
