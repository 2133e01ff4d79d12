package collector

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// HTTPError is returned by clients for a non 2XX platform response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message}
}

// IsRetryable reports whether err is a transient failure: rate limiting, a
// server side error or a network error. Any other 4XX is permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryFetcher retries transient failures of Inner with exponential backoff.
type RetryFetcher struct {
	Inner           Fetcher
	MaxRetries      uint64
	InitialInterval time.Duration
}

func NewRetryFetcher(inner Fetcher, maxRetries uint64, initialInterval time.Duration) *RetryFetcher {
	return &RetryFetcher{Inner: inner, MaxRetries: maxRetries, InitialInterval: initialInterval}
}

func (f *RetryFetcher) Fetch(ctx context.Context, q Query, cursor string) (Page, error) {
	var page Page
	op := func() error {
		var err error
		page, err = f.Inner.Fetch(ctx, q, cursor)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		Logger.Log.WithField("kind", q.Kind).WithField("target", q.Target).
			Warnf("transient fetch failure, retry in %s: %v", wait, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.MaxRetries), ctx), notify); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (f *RetryFetcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if f.InitialInterval > 0 {
		b.InitialInterval = f.InitialInterval
	}
	// Bounded by MaxRetries instead.
	b.MaxElapsedTime = 0
	return b
}
