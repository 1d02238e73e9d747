// Package generation drives long-running media generation jobs on a remote
// service: submission, polling to a terminal state under a wall-clock
// budget, batch orchestration with per-item isolation, and fetching the
// finished artifacts.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/reelforge/reelforge/retrypolicy"
)

// JobState is the last observed state of a remote job. The remote service
// stays the source of truth; this is a local cache of its answer.
type JobState string

const (
	StatePending   JobState = "PENDING"
	StateSucceeded JobState = "SUCCEEDED"
	StateFailed    JobState = "FAILED"
)

// JobSpec describes one generation job.
type JobSpec struct {
	Prompt          string `json:"prompt"`
	Image           string `json:"image,omitempty"` // base64-encoded reference frame
	DurationSeconds int    `json:"duration,omitempty"`
}

// JobStatus ...
type JobStatus struct {
	State     JobState
	OutputURL string
	Message   string
}

// Client submits generation jobs and reports their status. The well-known
// credit exhaustion shape maps to retrypolicy.ErrInsufficientCredits; every
// other failure is presumed transient.
type Client interface {
	Submit(ctx context.Context, spec JobSpec) (string, error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

type submitResponse struct {
	JobID string `json:"jobId"`
}

type statusResponse struct {
	Status    string `json:"status"`
	OutputURL string `json:"outputUrl"`
	Error     string `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type apiClient struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

// NewClient creates a Client for the generation service's HTTP API.
func NewClient(baseURL, accessToken string, logger log.Logger) Client {
	return &apiClient{
		httpClient:  retryhttp.NewClient(logger),
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		logger:      logger,
	}
}

func (c *apiClient) Submit(ctx context.Context, spec JobSpec) (string, error) {
	url := fmt.Sprintf("%s/jobs", c.baseURL)

	body, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", c.unwrapError(resp)
	}

	var response submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", err
	}
	if response.JobID == "" {
		return "", fmt.Errorf("submit response carries no job id")
	}
	return response.JobID, nil
}

func (c *apiClient) Status(ctx context.Context, jobID string) (JobStatus, error) {
	url := fmt.Sprintf("%s/jobs/%s", c.baseURL, jobID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return JobStatus{}, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return JobStatus{}, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, c.unwrapError(resp)
	}

	var response statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return JobStatus{}, err
	}

	return JobStatus{
		State:     parseState(response.Status, c.logger),
		OutputURL: response.OutputURL,
		Message:   response.Error,
	}, nil
}

func parseState(status string, logger log.Logger) JobState {
	switch strings.ToUpper(status) {
	case "SUCCEEDED", "COMPLETED":
		return StateSucceeded
	case "FAILED", "ERROR":
		return StateFailed
	case "PENDING", "QUEUED", "RUNNING", "IN_PROGRESS":
		return StatePending
	default:
		logger.Debugf("unknown job status %q, treating as pending", status)
		return StatePending
	}
}

func (c *apiClient) unwrapError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var parsed errorResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode == http.StatusPaymentRequired || parsed.Code == "insufficient_credits" {
		return fmt.Errorf("%w: %s", retrypolicy.ErrInsufficientCredits, strings.TrimSpace(parsed.Error))
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
}
