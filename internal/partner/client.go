// Package partner implements the HTTP client for the channel partner's
// syndication API: export submission, job status, per-listing activation
// and credential validation.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"listing_syndicator/internal/credentials"
	"listing_syndicator/internal/domain"
	"listing_syndicator/internal/fault"
)

// Config holds Partner client configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// Client talks to the Partner API. Errors are classified at the transport
// layer: network failures and 5xx are transient, 4xx permanent, 401
// invalidates the credential store.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	creds          *credentials.Store
	breaker        *gobreaker.CircuitBreaker
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a Partner API client.
func New(cfg Config, creds *credentials.Store, logger *slog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "partner-api",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		creds:          creds,
		breaker:        breaker,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "partner_client"),
	}
}

// SubmitExport submits listings for export. The Partner answers small
// batches synchronously and large ones with a job handle; both are
// normalized into a SubmitResult so downstream code never special-cases
// "already finished".
func (c *Client) SubmitExport(ctx context.Context, refs []domain.ListingRef) (*domain.SubmitResult, error) {
	ids := make([]int, len(refs))
	for i, ref := range refs {
		ids[i] = ref.PropertyID
	}

	var resp exportResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "/export", exportRequest{ListingIDs: ids}, &resp); err != nil {
		return nil, fmt.Errorf("submit export: %w", err)
	}

	if resp.JobID != "" {
		return &domain.SubmitResult{JobID: resp.JobID}, nil
	}

	outcome := &domain.ExportOutcome{
		Successful: resp.Successful,
		Failed:     resp.Failed,
		Errors:     transformItemErrors(resp.Errors),
	}
	return &domain.SubmitResult{Outcome: outcome}, nil
}

// JobStatus fetches one status observation for a submitted export job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	var resp statusResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "/export/status/"+jobID, nil, &resp); err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}

	snap := &domain.JobSnapshot{
		Status:     parseJobStatus(resp.Status),
		Processed:  resp.Processed,
		Total:      resp.Total,
		Successful: resp.Successful,
		Failed:     resp.Failed,
		Errors:     transformItemErrors(resp.Errors),
	}
	if resp.CurrentItem != nil {
		snap.CurrentItem = &domain.ListingRef{
			PropertyID: resp.CurrentItem.ListingID,
			ExternalID: resp.CurrentItem.ExternalID,
		}
	}
	return snap, nil
}

// Activate makes an already-exported listing live on the Partner platform.
func (c *Client) Activate(ctx context.Context, ref domain.ListingRef) (*domain.ActivationResult, error) {
	var resp activateResponse
	path := fmt.Sprintf("/activate/%d", ref.PropertyID)
	if err := c.doWithRetry(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("activate listing %d: %w", ref.PropertyID, err)
	}

	return &domain.ActivationResult{
		Ref:       ref,
		Activated: resp.Activated,
		Error:     resp.Error,
	}, nil
}

// ValidateCredentials asks the Partner whether the stored credentials are
// still accepted.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	var resp validateResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "/credentials/validate", nil, &resp); err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}
	if !resp.Valid {
		return fault.New(fault.KindCredentialInvalid, fault.CodeCredentialsExpired,
			"partner reports credentials invalid")
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body, out any) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.do(ctx, method, path, body, out)
		if err == nil || fault.KindOf(err) != fault.KindTransient {
			return err
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("partner request failed, retrying",
			"path", path,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

type rawResponse struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ListingSyndicator/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds, ok := c.creds.Current(); ok {
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}

	// Only transport failures and 5xx count as breaker failures; a 4xx is
	// the Partner answering fine.
	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fault.Wrap(fault.KindTransient, fault.CodeNetworkError, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fault.Wrap(fault.KindTransient, fault.CodeNetworkError, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fault.Newf(fault.KindTransient, fault.CodePartnerUnavailable,
				"partner returned status %d", resp.StatusCode)
		}
		return &rawResponse{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fault.Wrap(fault.KindTransient, fault.CodeCircuitOpen, err)
		}
		return err
	}

	raw := result.(*rawResponse)
	switch {
	case raw.status == http.StatusUnauthorized:
		c.creds.Invalidate()
		return fault.New(fault.KindCredentialInvalid, fault.CodeCredentialsExpired,
			"partner rejected credentials")
	case raw.status >= http.StatusBadRequest:
		var apiErr apiError
		_ = json.Unmarshal(raw.body, &apiErr)
		if apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("HTTP%d", raw.status)
		}
		return fault.Newf(fault.KindPermanent, apiErr.Code,
			"partner rejected request (%d): %s", raw.status, apiErr.Message)
	}

	if out != nil {
		if err := json.Unmarshal(raw.body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func parseJobStatus(s string) domain.JobStatus {
	switch s {
	case "pending":
		return domain.JobPending
	case "running":
		return domain.JobRunning
	case "succeeded":
		return domain.JobSucceeded
	case "failed":
		return domain.JobFailed
	default:
		return domain.JobPending
	}
}

func transformItemErrors(items []exportItemError) []domain.ExportError {
	if len(items) == 0 {
		return nil
	}
	errs := make([]domain.ExportError, 0, len(items))
	for _, item := range items {
		code := item.Code
		if code == "" {
			code = "ExportFailed"
		}
		errs = append(errs, domain.ExportError{
			Ref:     domain.ListingRef{PropertyID: item.ListingID},
			Step:    domain.StepExport,
			Code:    code,
			Message: item.Message,
		})
	}
	return errs
}
