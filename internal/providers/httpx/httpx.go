package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/hostelway/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 15 * time.Second
	maxTries       = 3
)

// ErrUnavailable wraps network failures and 5xx responses that survived
// the retry budget. Callers treat it as transient.
var ErrUnavailable = errors.New("provider_unavailable")

// RejectedError carries a provider's 4xx refusal. It is never retried.
type RejectedError struct {
	Provider string
	Status   int
	Message  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected request (%d): %s", e.Provider, e.Status, e.Message)
}

// Client is the shared outbound HTTP helper for every provider client.
// Network errors and 5xx responses are retried within the budget; 4xx
// responses map to RejectedError and are never retried.
type Client struct {
	hc      *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

type Response struct {
	Status int
	Body   []byte
}

func New(log *zap.Logger, m *metrics.Metrics) *Client {
	return &Client{
		hc:      &http.Client{Timeout: defaultTimeout},
		log:     log.Named("httpx"),
		metrics: m,
	}
}

func (c *Client) Do(ctx context.Context, provider, operation string, req Request) (*Response, error) {
	start := time.Now()

	attempt := func() (*Response, error) {
		return c.once(ctx, provider, req)
	}

	resp, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
	elapsed := time.Since(start)

	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			c.metrics.RecordProviderCall(ctx, provider, operation, "rejected", elapsed)
			c.log.Warn("provider rejected request",
				zap.String("provider", provider),
				zap.String("operation", operation),
				zap.Int("status", rejected.Status),
				zap.String("message", rejected.Message),
			)
			return nil, rejected
		}
		c.metrics.RecordProviderCall(ctx, provider, operation, "unavailable", elapsed)
		c.log.Warn("provider unavailable",
			zap.String("provider", provider),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.metrics.RecordProviderCall(ctx, provider, operation, "ok", elapsed)
	return resp, nil
}

func (c *Client) once(ctx context.Context, provider string, req Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	for key, value := range req.Header {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%s returned %d", provider, httpResp.StatusCode)
	}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return nil, backoff.Permanent(&RejectedError{
			Provider: provider,
			Status:   httpResp.StatusCode,
			Message:  errorMessage(payload, httpResp.StatusCode),
		})
	}

	return &Response{Status: httpResp.StatusCode, Body: payload}, nil
}

// errorMessage pulls a human-readable message out of the common provider
// error envelopes.
func errorMessage(payload []byte, status int) string {
	var envelope struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil {
		if msg := strings.TrimSpace(envelope.Message); msg != "" {
			return msg
		}
		if len(envelope.Error) > 0 {
			var flat string
			if err := json.Unmarshal(envelope.Error, &flat); err == nil && strings.TrimSpace(flat) != "" {
				return strings.TrimSpace(flat)
			}
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(envelope.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
				return strings.TrimSpace(nested.Message)
			}
		}
	}
	return http.StatusText(status)
}
