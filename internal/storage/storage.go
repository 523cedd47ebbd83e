package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Name         string
	LastModified time.Time
}

// FileStorage stores objects under caller chosen names
type FileStorage interface {
	// Upload stores r as objectName. size may be -1 when unknown.
	Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error

	// Download opens objectName for reading
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)

	Delete(ctx context.Context, objectName string) error

	// List returns the objects whose name starts with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// URL returns the address of objectName in the store
	URL(objectName string) string
}
