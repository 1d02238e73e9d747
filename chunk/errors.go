package chunk

import (
	"errors"
	"fmt"
)

// ErrManifestNotFound is returned by Reconstruct when no manifest exists
// under the given key.
var ErrManifestNotFound = errors.New("manifest not found")

// ChunkUploadError reports that one part exhausted its retries. By the time
// the caller sees it, every part uploaded so far has been rolled back.
type ChunkUploadError struct {
	Index int
	Err   error
}

func (e *ChunkUploadError) Error() string {
	return fmt.Sprintf("upload chunk %d: %s", e.Index, e.Err)
}

func (e *ChunkUploadError) Unwrap() error {
	return e.Err
}

// ChunkNotFoundError reports a manifest-listed chunk missing from the store.
type ChunkNotFoundError struct {
	Index int
	Key   string
}

func (e *ChunkNotFoundError) Error() string {
	return fmt.Sprintf("chunk %d not found (key %s)", e.Index, e.Key)
}

// SizeMismatchError reports that the reassembled byte count disagrees with
// the manifest's totalSize.
type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: manifest says %d bytes, reassembled %d", e.Expected, e.Actual)
}
