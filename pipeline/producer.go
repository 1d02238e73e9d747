// Package pipeline wires batch generation into chunked persistence: scenes
// are generated remotely, their outputs fetched, and each one stored under
// the owner's logical name.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/reelforge/reelforge/chunk"
	"github.com/reelforge/reelforge/generation"
	"github.com/reelforge/reelforge/ratelimit"
	"github.com/reelforge/reelforge/retrypolicy"
	"github.com/reelforge/reelforge/storage"
)

// ErrTooManyAttempts reports that the owner exhausted the production budget
// for the current window.
var ErrTooManyAttempts = errors.New("too many production attempts, try again later")

// ErrNothingGenerated reports that not a single scene survived generation.
// Partial success is fine downstream; total failure is not.
var ErrNothingGenerated = errors.New("no scene was generated successfully")

// Config ...
type Config struct {
	Batch  generation.BatchConfig
	Upload chunk.UploadConfig
	// MaxAttemptsPerWindow bounds Produce calls per owner; 0 disables the
	// check entirely.
	MaxAttemptsPerWindow int64
	AttemptWindow        time.Duration
}

// ProduceInput ...
type ProduceInput struct {
	OwnerID     string
	LogicalName string
	// Filename names the stored artifact; scene index and extension are
	// derived per scene.
	Filename string
	Scenes   []generation.JobSpec
}

// SceneResult is the per-scene outcome of one Produce call.
type SceneResult struct {
	Index int
	// Key and URL are set when the scene's artifact was stored.
	Key string
	URL string
	Err error
}

// ProduceResult ...
type ProduceResult struct {
	BatchID string
	Scenes  []SceneResult
}

// Stored returns the scenes whose artifacts were persisted, in index order.
func (r ProduceResult) Stored() []SceneResult {
	var stored []SceneResult
	for _, scene := range r.Scenes {
		if scene.Err == nil {
			stored = append(stored, scene)
		}
	}
	return stored
}

// Producer runs the whole flow for one batch of scenes. All collaborators
// are injected; see NewProducer.
type Producer struct {
	store      storage.ObjectStore
	generator  generation.Client
	downloader generation.OutputDownloader
	counter    ratelimit.Counter
	logger     log.Logger
	config     Config
}

// NewProducer creates a Producer. `downloader` and `counter` can be nil: the
// downloader defaults to the got-backed one, and a nil counter disables the
// attempt budget.
func NewProducer(
	store storage.ObjectStore,
	generator generation.Client,
	downloader generation.OutputDownloader,
	counter ratelimit.Counter,
	logger log.Logger,
	config Config,
) *Producer {
	if downloader == nil {
		downloader = generation.NewDownloader(logger)
	}
	return &Producer{
		store:      store,
		generator:  generator,
		downloader: downloader,
		counter:    counter,
		logger:     logger,
		config:     config,
	}
}

// Produce generates every scene, persists the winners, and reports per-scene
// outcomes. It errors only when the input is invalid, the attempt budget is
// exhausted, or nothing at all could be generated and stored; individual
// scene failures are recorded in the result instead.
func (p *Producer) Produce(ctx context.Context, input ProduceInput) (ProduceResult, error) {
	if input.OwnerID == "" || input.LogicalName == "" {
		return ProduceResult{}, fmt.Errorf("owner id and logical name must not be empty")
	}
	if len(input.Scenes) == 0 {
		return ProduceResult{}, fmt.Errorf("at least one scene is required")
	}
	if input.Filename == "" {
		input.Filename = input.LogicalName + ".mp4"
	}

	if err := p.checkBudget(ctx, input.OwnerID); err != nil {
		return ProduceResult{}, err
	}

	batchID := uuid.NewString()
	p.logger.Infof("Producing %d scene(s) for %s/%s [batch %s]",
		len(input.Scenes), input.OwnerID, input.LogicalName, batchID)

	batch := generation.NewBatch(p.generator, p.logger, p.config.Batch)
	generated := batch.RunAll(ctx, input.Scenes)

	result := ProduceResult{
		BatchID: batchID,
		Scenes:  make([]SceneResult, len(input.Scenes)),
	}
	for i := range result.Scenes {
		result.Scenes[i].Index = i
	}

	if len(generated.Succeeded()) == 0 {
		first := generated.Failed()[0].Err
		if errors.Is(first, retrypolicy.ErrInsufficientCredits) {
			// Surfaced distinctly so the user sees an actionable message
			// instead of a generic retry-later one.
			return ProduceResult{}, first
		}
		return ProduceResult{}, fmt.Errorf("%w: %s", ErrNothingGenerated, first)
	}

	uploader := chunk.NewUploader(p.store, p.logger, p.config.Upload)
	for _, outcome := range generated.Outcomes {
		if outcome.Err != nil {
			result.Scenes[outcome.Index].Err = outcome.Err
			continue
		}
		key, url, err := p.persistScene(ctx, uploader, input, outcome)
		if err != nil {
			p.logger.Errorf("persist scene %d: %s", outcome.Index, err)
			result.Scenes[outcome.Index].Err = err
			continue
		}
		result.Scenes[outcome.Index].Key = key
		result.Scenes[outcome.Index].URL = url
	}

	stored := result.Stored()
	if len(stored) == 0 {
		var firstErr error
		for _, outcome := range generated.Succeeded() {
			if err := result.Scenes[outcome.Index].Err; err != nil {
				firstErr = err
				break
			}
		}
		return ProduceResult{}, fmt.Errorf("every generated scene failed to persist: %w", firstErr)
	}

	p.logger.Donef("Stored %d/%d scene(s) for %s/%s [batch %s]",
		len(stored), len(input.Scenes), input.OwnerID, input.LogicalName, batchID)
	return result, nil
}

func (p *Producer) persistScene(ctx context.Context, uploader *chunk.Uploader, input ProduceInput, outcome generation.ItemOutcome) (string, string, error) {
	data, err := p.downloader.Download(ctx, outcome.OutputURL)
	if err != nil {
		return "", "", fmt.Errorf("download output: %w", err)
	}
	p.logger.Debugf("Scene %d output is %s", outcome.Index,
		units.HumanSizeWithPrecision(float64(len(data)), 3))

	// Scene uploads use per-scene logical names, so their prefixes stay
	// disjoint and a partial re-run only supersedes the scenes it touches.
	sceneName := fmt.Sprintf("%s/scene-%02d", input.LogicalName, outcome.Index)
	stored, err := uploader.Upload(ctx, data, input.OwnerID, sceneName, sceneFilename(input.Filename, outcome.Index))
	if err != nil {
		return "", "", fmt.Errorf("store output: %w", err)
	}
	return stored.Key, stored.URL, nil
}

func (p *Producer) checkBudget(ctx context.Context, ownerID string) error {
	if p.counter == nil || p.config.MaxAttemptsPerWindow <= 0 {
		return nil
	}
	window := p.config.AttemptWindow
	if window <= 0 {
		window = time.Hour
	}

	count, err := p.counter.Hit(ctx, "produce:"+ownerID, window)
	if err != nil {
		// The counter is advisory; its outage must not block production.
		p.logger.Warnf("attempt counter unavailable: %s", err)
		return nil
	}
	if count > p.config.MaxAttemptsPerWindow {
		return ErrTooManyAttempts
	}
	return nil
}

func sceneFilename(filename string, index int) string {
	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return fmt.Sprintf("%s-scene-%02d%s", base, index, ext)
}
