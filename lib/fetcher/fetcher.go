// Package fetcher wraps remote reads in a cache and a retry loop.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"
)

type Request struct {
	Operation  string // e.g. "issue_comments", used for logs and cache keys
	Target     string // absolute URL
	Checkpoint string
	Credential string
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) (json.RawMessage, error)
}

type FetcherFunc func(ctx context.Context, req Request) (json.RawMessage, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusForbidden)
}

func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// Transient reports whether repeating the call could succeed. Client errors
// other than rate limiting and request timeouts are permanent.
func Transient(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return true
	}
	switch {
	case se.StatusCode >= 500:
		return true
	case se.StatusCode == http.StatusRequestTimeout, IsRateLimited(err):
		return true
	}
	return false
}

var ErrInvalidJSON = errors.New("response is not valid JSON")

// ErrTransient marks a fetch that kept failing with retryable errors until
// the attempts ran out.
var ErrTransient = errors.New("transient failure persisted")

// HTTPClient is the innermost fetcher. It performs exactly one GET.
type HTTPClient struct {
	transport http.RoundTripper
	timeout   time.Duration
	log       *zap.Logger
}

func NewHTTPClient(transport http.RoundTripper, timeout time.Duration, log *zap.Logger) *HTTPClient {
	return &HTTPClient{transport, timeout, log}
}

func (c *HTTPClient) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body string
	rb := requests.URL(req.Target).
		Transport(c.transport).
		Accept("application/json").
		UserAgent("repowatch").
		AddValidator(checkStatus(req.Target)).
		ToString(&body)
	if req.Credential != "" {
		rb = rb.Bearer(req.Credential)
	}

	started := time.Now()
	if err := rb.Fetch(ctx); err != nil {
		return nil, err
	}
	c.log.Sugar().Debugw("Fetched",
		"operation", req.Operation,
		"elapsed_msecs", time.Since(started).Milliseconds(),
	)

	raw := json.RawMessage(body)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%s: %w", req.Operation, ErrInvalidJSON)
	}
	return raw, nil
}

func checkStatus(target string) requests.ResponseHandler {
	return func(res *http.Response) error {
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return nil
		}
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &StatusError{StatusCode: res.StatusCode, URL: target, Body: string(snippet)}
	}
}

type Options struct {
	RetryMax   int
	RetryDelay time.Duration
	CacheTTL   time.Duration
}

func DefaultOptions() Options {
	return Options{RetryMax: 2, RetryDelay: time.Second, CacheTTL: 60 * time.Second}
}

// Chain composes cache, then retry, then raw. Cache hits never reach the
// retry loop.
func Chain(raw Fetcher, store Store, opts Options, log *zap.Logger) Fetcher {
	retry := NewRetry(raw, opts.RetryMax, opts.RetryDelay, log)
	return NewCache(retry, store, opts.CacheTTL, log)
}
