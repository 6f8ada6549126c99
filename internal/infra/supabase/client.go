// Package supabase implements the entity store on top of Supabase PostgREST.
// Every round trip runs inside the shared circuit breaker with retry and
// backoff; uniqueness and conditional status updates are enforced by the
// database through query filters, never by read-then-write in the client.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	pageSize       int
	logger         *zap.Logger
}

// defaultPageSize matches the max-rows cap of a stock Supabase project.
const defaultPageSize = 1000

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		pageSize:       defaultPageSize,
		logger:         logger,
	}
}

// statusError is a non-2xx PostgREST response.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// classify marks client errors as permanent so they are neither retried nor
// counted against the breaker. 408 and 429 stay retryable.
func classify(err *statusError) error {
	switch {
	case err.Status == http.StatusConflict:
		return resilience.Permanent(&domain.ErrConflict{Message: err.Body})
	case err.Status == http.StatusRequestTimeout, err.Status == http.StatusTooManyRequests:
		return err
	case err.Status >= 400 && err.Status < 500:
		return resilience.Permanent(err)
	default:
		return err
	}
}

// call runs fn under the breaker with retry and maps the outcome to domain errors.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
	if err == nil {
		return nil
	}

	var (
		notFound  *domain.ErrNotFound
		malformed *domain.ErrMalformedRecord
		conflict  *domain.ErrConflict
	)
	switch {
	case errors.As(err, &notFound):
		return notFound
	case errors.As(err, &malformed):
		c.logger.Error("supabase: malformed record",
			zap.String("op", op),
			zap.String("collection", malformed.Collection),
			zap.String("id", malformed.ID),
			zap.String("reason", malformed.Reason),
		)
		return malformed
	case errors.As(err, &conflict):
		return conflict
	case resilience.IsBreakerRejection(err):
		c.logger.Warn("supabase: circuit open", zap.String("op", op))
		return &domain.ErrStoreUnavailable{Op: op, Err: &domain.ErrCircuitOpen{Service: "supabase"}}
	default:
		return &domain.ErrStoreUnavailable{Op: op, Err: err}
	}
}

// doRequest executes an authenticated GET against PostgREST.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	return c.send(ctx, method, path, nil, "")
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, prefer string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := readBody(resp)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil, classify(&statusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(respBody)})
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return respBody, nil
}

// Ping issues a cheap read to confirm PostgREST answers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	_, err := c.send(ctx, http.MethodGet, "owners?select=id&limit=1", nil, "")
	return err
}

// eq builds a PostgREST equality filter value.
func eq(v string) string {
	return "eq." + url.QueryEscape(v)
}

// in builds a PostgREST list filter value with each item double-quoted.
func in(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "in.(" + url.QueryEscape(strings.Join(quoted, ",")) + ")"
}
