package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/reelforge/reelforge/retrypolicy"
	"github.com/reelforge/reelforge/storage"
)

// UploadConfig tunes one Uploader. Zero fields fall back to the defaults.
type UploadConfig struct {
	// PartSize is the fixed chunk size; DefaultPartSize when 0.
	PartSize int64
	// MaxRetries is the attempt budget per part.
	MaxRetries int
	// AttemptTimeout bounds a single part write.
	AttemptTimeout time.Duration
	// BaseBackoff scales the wait between part retries.
	BaseBackoff time.Duration
	// PartDelay is a politeness pause between consecutive parts so the
	// store isn't hammered. Not a correctness requirement.
	PartDelay time.Duration
	// SignedURLTTL is the lifetime of the read URL in the result.
	SignedURLTTL time.Duration
}

// DefaultUploadConfig ...
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:       DefaultPartSize,
		MaxRetries:     3,
		AttemptTimeout: 30 * time.Second,
		BaseBackoff:    time.Second,
		PartDelay:      200 * time.Millisecond,
		SignedURLTTL:   time.Hour,
	}
}

func (c UploadConfig) withDefaults() UploadConfig {
	defaults := DefaultUploadConfig()
	if c.PartSize <= 0 {
		c.PartSize = defaults.PartSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaults.AttemptTimeout
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = defaults.SignedURLTTL
	}
	return c
}

// Result points at the durably stored object.
type Result struct {
	// Key is the manifest key for chunked uploads, the object key otherwise.
	Key string
	// URL is a time-limited read URL for the stored object. Chunked objects
	// must be read through a Reconstructor instead.
	URL     string
	Chunked bool
	Size    int64
	// SessionID identifies this upload attempt in logs.
	SessionID string
}

// Uploader writes large binary objects into an ObjectStore, part by part.
// Parts of one object upload strictly in sequence; distinct logical names
// may upload concurrently since their key prefixes are disjoint.
type Uploader struct {
	store  storage.ObjectStore
	logger log.Logger
	config UploadConfig
}

// NewUploader ...
func NewUploader(store storage.ObjectStore, logger log.Logger, config UploadConfig) *Uploader {
	return &Uploader{
		store:  store,
		logger: logger,
		config: config.withDefaults(),
	}
}

// Upload persists data under ownerID/logicalName. Any prior version under
// that logical name is deleted first, so a re-upload supersedes rather than
// accumulates. On irrecoverable part failure every part written so far is
// deleted and a *ChunkUploadError is returned.
func (u *Uploader) Upload(ctx context.Context, data []byte, ownerID, logicalName, filename string) (Result, error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("object must not be empty")
	}
	if ownerID == "" || logicalName == "" {
		return Result{}, fmt.Errorf("owner id and logical name must not be empty")
	}
	if filename == "" {
		filename = logicalName
	}

	sessionID := uuid.NewString()

	// Supersede any previous version before writing anything new, so
	// re-running an upload never leaves orphaned parts behind.
	if err := u.deletePrefix(ctx, objectPrefix(ownerID, logicalName)); err != nil {
		return Result{}, fmt.Errorf("clean up previous upload: %w", err)
	}

	plan := PlanChunks(int64(len(data)), u.config.PartSize)
	u.logger.Infof("Uploading %s (%s) as %d part(s) [session %s]",
		filename, units.HumanSizeWithPrecision(float64(len(data)), 3), plan.TotalChunks, sessionID)

	if plan.Single() {
		return u.uploadSingle(ctx, data, ownerID, logicalName, filename, sessionID)
	}
	return u.uploadChunked(ctx, data, plan, ownerID, logicalName, filename, sessionID)
}

func (u *Uploader) uploadSingle(ctx context.Context, data []byte, ownerID, logicalName, filename, sessionID string) (Result, error) {
	key := directKey(ownerID, logicalName, filename)
	if err := u.putWithRetry(ctx, key, data, contentTypeOf(filename)); err != nil {
		return Result{}, fmt.Errorf("upload object: %w", err)
	}

	url, err := u.store.SignedURL(ctx, key, u.config.SignedURLTTL, storage.IntentRead)
	if err != nil {
		return Result{}, fmt.Errorf("sign object url: %w", err)
	}

	u.logger.Donef("Uploaded %s in one shot [session %s]", key, sessionID)
	return Result{
		Key:       key,
		URL:       url,
		Chunked:   false,
		Size:      int64(len(data)),
		SessionID: sessionID,
	}, nil
}

func (u *Uploader) uploadChunked(ctx context.Context, data []byte, plan Plan, ownerID, logicalName, filename, sessionID string) (Result, error) {
	contentType := contentTypeOf(filename)

	// Keys written during this call, in sequence order. Discarded after the
	// call either way; the manifest is the only persistent record.
	session := make([]string, 0, plan.TotalChunks)

	for index := 0; index < plan.TotalChunks; index++ {
		offset := plan.Offset(index)
		part := data[offset : offset+plan.ChunkSize(index)]
		key := chunkKey(ownerID, logicalName, filename, index)

		u.logger.Debugf("Uploading chunk %d/%d (%d bytes) [session %s]",
			index+1, plan.TotalChunks, len(part), sessionID)

		if err := u.putWithRetry(ctx, key, part, contentType); err != nil {
			u.rollback(session, sessionID)
			return Result{}, &ChunkUploadError{Index: index, Err: err}
		}
		session = append(session, key)

		if index < plan.TotalChunks-1 && u.config.PartDelay > 0 {
			select {
			case <-time.After(u.config.PartDelay):
			case <-ctx.Done():
				u.rollback(session, sessionID)
				return Result{}, ctx.Err()
			}
		}
	}

	manifest := Manifest{
		OriginalFilename: filename,
		TotalChunks:      plan.TotalChunks,
		ChunkSize:        plan.PartSize,
		TotalSize:        plan.TotalSize,
		Chunks:           session,
		UploadedAt:       time.Now().UTC(),
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		u.rollback(session, sessionID)
		return Result{}, fmt.Errorf("encode manifest: %w", err)
	}

	mKey := manifestKey(ownerID, logicalName, filename)
	// A failed manifest write is a failed upload: without the manifest the
	// parts are unreachable, so they are rolled back the same way.
	if err := u.putWithRetry(ctx, mKey, body, "application/json"); err != nil {
		u.rollback(session, sessionID)
		return Result{}, fmt.Errorf("upload manifest: %w", err)
	}

	url, err := u.store.SignedURL(ctx, mKey, u.config.SignedURLTTL, storage.IntentRead)
	if err != nil {
		u.logger.Warnf("sign manifest url for %s: %s", mKey, err)
	}

	u.logger.Donef("Uploaded %d chunk(s) and manifest %s [session %s]", plan.TotalChunks, mKey, sessionID)
	return Result{
		Key:       mKey,
		URL:       url,
		Chunked:   true,
		Size:      plan.TotalSize,
		SessionID: sessionID,
	}, nil
}

func (u *Uploader) putWithRetry(ctx context.Context, key string, data []byte, contentType string) error {
	policy := retrypolicy.Policy{
		MaxAttempts:       u.config.MaxRetries,
		PerAttemptTimeout: u.config.AttemptTimeout,
		BaseBackoff:       u.config.BaseBackoff,
		// A timed-out write may still have landed server-side. Probe before
		// paying for a duplicate attempt.
		Recovered: func(ctx context.Context) bool {
			found, err := u.store.Exists(ctx, key)
			if err != nil {
				u.logger.Debugf("existence probe for %s failed: %s", key, err)
				return false
			}
			if found {
				u.logger.Debugf("timed-out write of %s landed server-side, keeping it", key)
			}
			return found
		},
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		return u.store.Put(ctx, key, data, contentType)
	})
}

// rollback deletes every part recorded in the session. Best effort: cleanup
// failures are reported as warnings, never propagated, so they cannot mask
// the error that triggered the rollback. Runs on a fresh context so a
// cancelled upload still gets cleaned up.
func (u *Uploader) rollback(session []string, sessionID string) {
	if len(session) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed := 0
	for _, key := range session {
		if err := u.store.Delete(ctx, key); err != nil {
			u.logger.Warnf("cleanup failed: orphaned chunk %s [session %s]: %s", key, sessionID, err)
			continue
		}
		removed++
	}
	u.logger.Infof("Rolled back %d/%d uploaded chunk(s) [session %s]", removed, len(session), sessionID)
}

func (u *Uploader) deletePrefix(ctx context.Context, prefix string) error {
	keys, err := u.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}
	for _, key := range keys {
		if err := u.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	if len(keys) > 0 {
		u.logger.Debugf("Removed %d object(s) under %s", len(keys), prefix)
	}
	return nil
}

func contentTypeOf(filename string) string {
	if contentType := mime.TypeByExtension(path.Ext(filename)); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}
