package generation

import (
	"context"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/reelforge/reelforge/retrypolicy"
)

// ItemOutcome is the per-job result of a batch run.
type ItemOutcome struct {
	Index     int
	OutputURL string
	Err       error
}

// BatchResult holds one outcome per submitted spec, in spec order.
type BatchResult struct {
	Outcomes []ItemOutcome
}

// Succeeded returns the successful outcomes in index order.
func (r BatchResult) Succeeded() []ItemOutcome {
	var succeeded []ItemOutcome
	for _, outcome := range r.Outcomes {
		if outcome.Err == nil {
			succeeded = append(succeeded, outcome)
		}
	}
	return succeeded
}

// Failed returns the failed outcomes in index order.
func (r BatchResult) Failed() []ItemOutcome {
	var failed []ItemOutcome
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// BatchConfig ...
type BatchConfig struct {
	// Concurrency caps parallel jobs; 0 runs every job at once, which is
	// the default since each job is I/O-bound waiting on the remote
	// service.
	Concurrency int
	// MaxAttemptsPerJob is the per-item budget. Every attempt submits a
	// fresh job; a failed or timed-out job id is never resumed.
	MaxAttemptsPerJob int
	// BaseBackoff scales the wait between per-item attempts.
	BaseBackoff time.Duration
	Poll        PollOptions
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.MaxAttemptsPerJob <= 0 {
		c.MaxAttemptsPerJob = 2
	}
	return c
}

// Batch runs independent generation jobs, one per item. Items fail in
// isolation: a terminal failure on one never aborts its siblings, and the
// batch itself never errors. Callers decide whether the partial result is
// enough.
type Batch struct {
	client Client
	logger log.Logger
	config BatchConfig
}

// NewBatch ...
func NewBatch(client Client, logger log.Logger, config BatchConfig) *Batch {
	return &Batch{
		client: client,
		logger: logger,
		config: config.withDefaults(),
	}
}

// RunAll polls every spec to completion and reports per-item outcomes.
func (b *Batch) RunAll(ctx context.Context, specs []JobSpec) BatchResult {
	outcomes := make([]ItemOutcome, len(specs))

	var sem chan struct{}
	if b.config.Concurrency > 0 {
		sem = make(chan struct{}, b.config.Concurrency)
	}

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(index int, spec JobSpec) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			outputURL, err := b.runOne(ctx, index, spec)
			outcomes[index] = ItemOutcome{Index: index, OutputURL: outputURL, Err: err}
		}(i, spec)
	}
	wg.Wait()

	result := BatchResult{Outcomes: outcomes}
	b.logger.Infof("Batch finished: %d/%d item(s) succeeded", len(result.Succeeded()), len(specs))
	return result
}

func (b *Batch) runOne(ctx context.Context, index int, spec JobSpec) (string, error) {
	poller := NewPoller(b.client, b.logger)

	var outputURL string
	policy := retrypolicy.Policy{
		MaxAttempts: b.config.MaxAttemptsPerJob,
		BaseBackoff: b.config.BaseBackoff,
		// Only credit exhaustion is terminal here. A failed or timed-out
		// job retries as a brand-new submission.
		Classify: retrypolicy.IsTerminal,
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		url, err := poller.Poll(ctx, spec, b.config.Poll)
		if err != nil {
			b.logger.Warnf("batch item %d: %s", index, err)
			return err
		}
		outputURL = url
		return nil
	})
	if err != nil {
		return "", err
	}
	return outputURL, nil
}
