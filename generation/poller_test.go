package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll_SucceedsAfterPendingPolls(t *testing.T) {
	client := newFakeClient()
	client.statusFn = func(jobID string, poll int) (JobStatus, error) {
		if poll < 3 {
			return JobStatus{State: StatePending}, nil
		}
		return JobStatus{State: StateSucceeded, OutputURL: "https://outputs.example/final.mp4"}, nil
	}

	poller := NewPoller(client, log.NewLogger())
	start := time.Now()
	outputURL, err := poller.Poll(context.Background(), JobSpec{Prompt: "a walk in the park"}, PollOptions{
		Interval: 10 * time.Millisecond,
		MaxWait:  time.Second,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "https://outputs.example/final.mp4", outputURL)
	assert.Equal(t, 3, client.pollCount("job-1"))
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond, "two pending polls must pass first")
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestPoll_TimesOutWhileStillPending(t *testing.T) {
	client := newFakeClient()
	client.statusFn = func(jobID string, poll int) (JobStatus, error) {
		return JobStatus{State: StatePending}, nil
	}

	poller := NewPoller(client, log.NewLogger())
	start := time.Now()
	_, err := poller.Poll(context.Background(), JobSpec{Prompt: "p"}, PollOptions{
		Interval: 10 * time.Millisecond,
		MaxWait:  50 * time.Millisecond,
	})
	elapsed := time.Since(start)

	require.True(t, errors.Is(err, ErrGenerationTimeout))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestPoll_ReportsRemoteFailure(t *testing.T) {
	client := newFakeClient()
	client.statusFn = func(jobID string, poll int) (JobStatus, error) {
		return JobStatus{State: StateFailed, Message: "content policy rejection"}, nil
	}

	poller := NewPoller(client, log.NewLogger())
	_, err := poller.Poll(context.Background(), JobSpec{Prompt: "p"}, PollOptions{
		Interval: 5 * time.Millisecond,
		MaxWait:  time.Second,
	})

	require.True(t, errors.Is(err, ErrGenerationFailed))
	assert.Contains(t, err.Error(), "content policy rejection")
}

func TestPoll_SubmitFailureSurfacesImmediately(t *testing.T) {
	client := newFakeClient()
	client.submitFn = func(spec JobSpec, submission int) (string, error) {
		return "", errors.New("service unavailable")
	}

	poller := NewPoller(client, log.NewLogger())
	_, err := poller.Poll(context.Background(), JobSpec{Prompt: "p"}, PollOptions{
		Interval: 5 * time.Millisecond,
		MaxWait:  time.Second,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit job")
	assert.Equal(t, 0, client.pollCount("job-1"), "no polling after a failed submission")
}

func TestPoll_CancellationExitsPromptly(t *testing.T) {
	client := newFakeClient()
	client.statusFn = func(jobID string, poll int) (JobStatus, error) {
		return JobStatus{State: StatePending}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	poller := NewPoller(client, log.NewLogger())
	start := time.Now()
	_, err := poller.Poll(ctx, JobSpec{Prompt: "p"}, PollOptions{
		Interval: 10 * time.Millisecond,
		MaxWait:  time.Minute,
	})
	elapsed := time.Since(start)

	require.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrGenerationFailed))
	assert.False(t, errors.Is(err, ErrGenerationTimeout))
	assert.Less(t, elapsed, time.Second, "cancellation must not wait for the deadline")
}

func TestPoll_ToleratesTransientStatusErrors(t *testing.T) {
	client := newFakeClient()
	client.statusFn = func(jobID string, poll int) (JobStatus, error) {
		switch poll {
		case 1:
			return JobStatus{}, errors.New("connection reset")
		case 2:
			return JobStatus{State: StatePending}, nil
		default:
			return JobStatus{State: StateSucceeded, OutputURL: "https://outputs.example/ok"}, nil
		}
	}

	poller := NewPoller(client, log.NewLogger())
	outputURL, err := poller.Poll(context.Background(), JobSpec{Prompt: "p"}, PollOptions{
		Interval: 5 * time.Millisecond,
		MaxWait:  time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://outputs.example/ok", outputURL)
	assert.Equal(t, 3, client.pollCount("job-1"))
}
