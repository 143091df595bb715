package domain

import (
	"context"
	"io"
)

// BlobStore is the archival surface: write-once run objects plus the
// existence probe that keeps re-archiving idempotent.
type BlobStore interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	Exists(ctx context.Context, path string) (bool, error)
}
