// Package apiclient is the typed HTTP client for the CompeteIQ backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/pkg/response"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:7000"

// Client talks to the backend. It holds no job state; polling cadence is
// owned by the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	validate   *validator.Validate
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu       sync.RWMutex
	token    string
	userName string
}

type Option func(*Client)

// WithHTTPClient replaces the default instrumented http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRateLimit paces outgoing requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		validate: model.NewValidator(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, e.g. after login.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetUserName sets the display name forwarded with analysis requests.
func (c *Client) SetUserName(name string) {
	c.mu.Lock()
	c.userName = name
	c.mu.Unlock()
}

func (c *Client) currentUserName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userName
}

// checkInput validates a request before anything touches the network.
func (c *Client) checkInput(op string, v interface{}) error {
	if err := c.validate.Struct(v); err != nil {
		return &ValidationError{Op: op, Fields: fieldErrors(err), Err: err}
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, path string, out interface{}) error {
	return c.doRequest(ctx, op, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, op, path string, body, out interface{}) error {
	return c.doRequest(ctx, op, http.MethodPost, path, body, out)
}

func (c *Client) put(ctx context.Context, op, path string, body, out interface{}) error {
	return c.doRequest(ctx, op, http.MethodPut, path, body, out)
}

func (c *Client) delete(ctx context.Context, op, path string) error {
	return c.doRequest(ctx, op, http.MethodDelete, path, nil, nil)
}

func (c *Client) doRequest(ctx context.Context, op, method, path string, body, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request", "op", op, "method", method, "url", url)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	c.logger.Debug("api response", "op", op, "status", resp.StatusCode, "latency", time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ValidationError{Op: op, Err: fmt.Errorf("malformed response: %w", err)}
		}
		if err := c.validate.Struct(out); err != nil {
			return &ValidationError{Op: op, Fields: fieldErrors(err), Err: errors.New("response shape mismatch")}
		}
		return nil
	}

	return c.statusError(op, path, resp.StatusCode, respBody)
}

func (c *Client) statusError(op, path string, status int, body []byte) error {
	var envelope response.ErrorResponse
	_ = json.Unmarshal(body, &envelope)
	detail := envelope.Error
	if detail.Message == "" {
		detail.Message = strings.TrimSpace(string(body))
	}

	switch {
	case status == http.StatusNotFound:
		resource, id := resourceFromPath(path)
		return &NotFoundError{Op: op, Resource: resource, ID: id}
	case status == http.StatusConflict || detail.Code == response.CodeNotReady:
		return &PreconditionError{Op: op, Reason: detail.Message}
	case status == http.StatusBadRequest:
		return &ValidationError{Op: op, Fields: detailFields(detail.Details), Err: errors.New(detail.Message)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Op: op, StatusCode: status, Err: errors.New(detail.Message)}
	}
	return &APIError{Op: op, StatusCode: status, Code: detail.Code, Message: detail.Message}
}

// resourceFromPath names the resource addressed by an /api path.
func resourceFromPath(path string) (string, string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" {
		return parts[1], parts[2]
	}
	return path, ""
}

func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = e.Tag()
	}
	return out
}

func detailFields(details interface{}) map[string]string {
	m, ok := details.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}
