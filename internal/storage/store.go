// Package storage provides object storage access and the local working
// area used while items are transcoded.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore abstracts the bucket holding originals and transcoded output.
type ObjectStore interface {
	// Put stores the reader's content under key.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// PutFile stores a local file under key and returns its size.
	PutFile(ctx context.Context, key, path string, contentType string) (int64, error)
	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// DownloadFile fetches the object into a local file and returns its size.
	DownloadFile(ctx context.Context, key, path string) (int64, error)
	// Head returns object metadata, or an error if the object is missing.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// Delete removes a single object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under the prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// PresignGet returns a time-limited GET URL for the object.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
