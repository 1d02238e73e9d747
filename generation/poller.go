package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/reelforge/reelforge/retrypolicy"
)

// ErrGenerationFailed reports that the remote service marked the job failed.
// Retrying the same job id cannot help; the caller may submit a fresh job.
var ErrGenerationFailed = errors.New("generation job failed")

// ErrGenerationTimeout reports that the wall-clock budget ran out while the
// job was still pending. The remote job is not cancelled (the service has no
// cancellation primitive); the poller just stops waiting. A fresh job must
// be submitted to retry, never the timed-out id.
var ErrGenerationTimeout = errors.New("generation job timed out")

// DefaultPollInterval ...
const DefaultPollInterval = 5 * time.Second

// DefaultMaxWait ...
const DefaultMaxWait = 10 * time.Minute

// PollOptions hold the two independent time knobs of a polling loop: how
// often to ask, and how long to keep asking. Neither bounds a single status
// call; callers wanting that apply their own per-call timeout.
type PollOptions struct {
	Interval time.Duration
	MaxWait  time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	return o
}

// Poller drives one remote job from submission to a terminal state.
type Poller struct {
	client Client
	logger log.Logger
	now    func() time.Time
}

// NewPoller ...
func NewPoller(client Client, logger log.Logger) *Poller {
	return &Poller{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Poll submits the job once and polls it to completion, returning the
// output URL on success. Submission failures surface immediately without
// retry; retry decisions belong to the caller. Cancelling ctx exits the
// loop promptly with ctx.Err(), an outcome distinct from the job's own
// terminal states.
func (p *Poller) Poll(ctx context.Context, spec JobSpec, opts PollOptions) (string, error) {
	opts = opts.withDefaults()

	jobID, err := p.client.Submit(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	p.logger.Debugf("Submitted job %s, polling every %s with a %s budget", jobID, opts.Interval, opts.MaxWait)

	deadline := p.now().Add(opts.MaxWait)
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := p.client.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if retrypolicy.IsTerminal(err) {
				return "", err
			}
			// One failed poll must not kill a long-running job.
			p.logger.Warnf("poll job %s: %s", jobID, err)
		} else {
			switch status.State {
			case StateSucceeded:
				p.logger.Debugf("Job %s succeeded", jobID)
				return status.OutputURL, nil
			case StateFailed:
				if status.Message != "" {
					return "", fmt.Errorf("%w: %s", ErrGenerationFailed, status.Message)
				}
				return "", ErrGenerationFailed
			}
		}

		if p.now().After(deadline) {
			return "", fmt.Errorf("%w after %s (job %s)", ErrGenerationTimeout, opts.MaxWait, jobID)
		}
	}
}
