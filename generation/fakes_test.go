package generation

import (
	"context"
	"fmt"
	"sync"
)

// fakeClient scripts the remote service. submitFn decides the job id (or
// error) per spec; statusFn decides the answer for the n-th poll of a job.
type fakeClient struct {
	mu       sync.Mutex
	submitFn func(spec JobSpec, submission int) (string, error)
	statusFn func(jobID string, poll int) (JobStatus, error)
	submits  int
	polls    map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{polls: map[string]int{}}
}

func (c *fakeClient) Submit(ctx context.Context, spec JobSpec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.submits++
	if c.submitFn != nil {
		return c.submitFn(spec, c.submits)
	}
	return fmt.Sprintf("job-%d", c.submits), nil
}

func (c *fakeClient) Status(ctx context.Context, jobID string) (JobStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.polls[jobID]++
	if c.statusFn != nil {
		return c.statusFn(jobID, c.polls[jobID])
	}
	return JobStatus{State: StateSucceeded, OutputURL: "https://outputs.example/" + jobID}, nil
}

func (c *fakeClient) submitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits
}

func (c *fakeClient) pollCount(jobID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls[jobID]
}
