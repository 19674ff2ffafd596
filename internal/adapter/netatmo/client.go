// Package netatmo talks to the Netatmo weather API: the password-grant token
// endpoint and getpublicdata.
package netatmo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/netatmo-ingest/internal/domain"
	"github.com/couchcryptid/netatmo-ingest/internal/observability"
)

const (
	tokenPath      = "/oauth2/token"
	publicDataPath = "/api/getpublicdata"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 32 << 20
)

var (
	ErrCircuitOpen = errors.New("netatmo circuit breaker open")
	ErrNoToken     = errors.New("no access_token in token response")
	ErrBadResponse = errors.New("getpublicdata response is not formatted as expected")
)

// Credentials for the OAuth2 password grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	Credentials Credentials
}

// APIError is a non-2xx answer from Netatmo.
type APIError struct {
	Endpoint string
	Status   int
	// Message is the vendor's error field, when the body carried one.
	Message string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s request failed: status %d", e.Endpoint, e.Status)
	if e.Message != "" {
		msg += ": netatmo error: " + e.Message
	}
	return msg
}

// retryableError marks failures worth another attempt: transport errors,
// 429 and 5xx.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Client implements pipeline.PublicDataSource. Requests go through a circuit
// breaker and are retried with exponential backoff on transient failures.
type Client struct {
	creds      Credentials
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Netatmo API client.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		creds:      cfg.Credentials,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "netatmo",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
		maxRetries: cfg.MaxRetries,
		backoff:    500 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		metrics:    metrics,
		logger:     logger,
	}
}

// AccessToken exchanges the configured credentials for an access token.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"username":      {c.creds.Username},
		"password":      {c.creds.Password},
		"grant_type":    {"password"},
	}

	body, err := c.post(ctx, "token", tokenPath, form)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return "", ErrNoToken
	}
	return resp.AccessToken, nil
}

// PublicData fetches the stations Netatmo reports inside w.
func (c *Client) PublicData(ctx context.Context, accessToken string, w domain.Window) ([]domain.RawDevice, error) {
	form := url.Values{
		"access_token": {accessToken},
		"lat_ne":       {formatCoord(w.North)},
		"lon_ne":       {formatCoord(w.East)},
		"lat_sw":       {formatCoord(w.South)},
		"lon_sw":       {formatCoord(w.West)},
	}

	body, err := c.post(ctx, "publicdata", publicDataPath, form)
	if err != nil {
		return nil, fmt.Errorf("public data request: %w", err)
	}

	var resp struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode public data response: %w", err)
	}
	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrBadResponse
	}
	var devices []domain.RawDevice
	if err := json.Unmarshal(trimmed, &devices); err != nil {
		return nil, fmt.Errorf("decode public data body: %w", err)
	}
	return devices, nil
}

// post sends a form-encoded request and records metrics for it.
func (c *Client) post(ctx context.Context, endpoint, path string, form url.Values) ([]byte, error) {
	start := time.Now()
	body, err := c.postWithRetry(ctx, endpoint, path, form)
	c.metrics.NetatmoRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.NetatmoRequests.WithLabelValues(endpoint, outcome).Inc()
	return body, err
}

func (c *Client) postWithRetry(ctx context.Context, endpoint, path string, form url.Values) ([]byte, error) {
	delay := c.backoff
	for attempt := 0; ; attempt++ {
		body, err := c.attempt(ctx, endpoint, path, form)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var retryable *retryableError
		if !errors.As(err, &retryable) || attempt >= c.maxRetries {
			return nil, err
		}

		c.logger.Warn("netatmo request failed, retrying",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"backoff", delay,
			"error", err,
		)
		if !retry.SleepWithContext(ctx, delay) {
			return nil, ctx.Err()
		}
		delay = retry.NextBackoff(delay, c.maxBackoff)
	}
}

// attempt makes one request. Transient failures are returned as errors so
// the breaker counts them; a 4xx is a definite answer and passes through
// the breaker as a result.
func (c *Client) attempt(ctx context.Context, endpoint, path string, form url.Values) ([]byte, error) {
	type answer struct {
		status int
		body   []byte
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &retryableError{err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, &retryableError{err: fmt.Errorf("read response: %w", err)}
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &retryableError{err: newAPIError(endpoint, resp.StatusCode, body)}
		}
		return answer{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return nil, err
	}

	a, ok := result.(answer)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T from circuit breaker", result)
	}
	if a.status < 200 || a.status >= 300 {
		return nil, newAPIError(endpoint, a.status, a.body)
	}
	return a.body, nil
}

// newAPIError pulls the vendor error out of body. The token endpoint sends a
// string ("invalid_grant"); the API endpoints send {"code", "message"}.
func newAPIError(endpoint string, status int, body []byte) *APIError {
	apiErr := &APIError{Endpoint: endpoint, Status: status}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Error) == 0 {
		return apiErr
	}
	var s string
	if json.Unmarshal(envelope.Error, &s) == nil {
		apiErr.Message = s
		return apiErr
	}
	var obj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(envelope.Error, &obj) == nil {
		apiErr.Message = obj.Message
		if obj.Code != 0 {
			apiErr.Message = fmt.Sprintf("%s (code %d)", obj.Message, obj.Code)
		}
	}
	return apiErr
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
