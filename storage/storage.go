// Package storage defines the object store contract the upload and
// reconstruction layers depend on, plus an S3-backed implementation.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by Get and SignedURL when no object exists
// under the requested key.
var ErrObjectNotFound = errors.New("object not found")

// Intent selects how a signed URL will be used by its recipient.
type Intent string

const (
	// IntentRead issues a URL for inline reads (streaming playback).
	IntentRead Intent = "read"
	// IntentDownload issues a URL that triggers an attachment download.
	IntentDownload Intent = "download"
)

// ObjectStore is a named-blob store. Implementations must make Delete
// idempotent: deleting a missing key is not an error.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration, intent Intent) (string, error)
}
