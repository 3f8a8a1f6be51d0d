package storage

import (
	"context"
	"io"
)

// Storage holds uploaded source files between the API accepting them and
// the worker ingesting them.
type Storage interface {
	Upload(ctx context.Context, bucket, path string, data io.Reader, contentType string) error
	Download(ctx context.Context, bucket, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, path string) error
}
