// Package httpretry provides bounded retry with exponential backoff for
// idempotent HTTP calls. Only sources that explicitly retry use it; everyone
// else fails fast and lets the merge waterfall compensate.
package httpretry

import (
	"context"
	"io"
	"net/http"
	"time"
)

type Policy struct {
	Attempts  int           // total attempts, minimum 1
	BaseDelay time.Duration // first backoff, doubled per retry
}

// RetryableStatus reports whether an HTTP status is transient enough to retry.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Do runs fn up to p.Attempts times, backing off between attempts. A transport
// error or a retryable status triggers another attempt; any other outcome is
// returned immediately. Bodies of retried responses are drained and closed
// here so connections can be reused.
func Do(ctx context.Context, p Policy, fn func() (*http.Response, error)) (*http.Response, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := p.BaseDelay << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err = fn()
		if err != nil {
			continue
		}
		if RetryableStatus(resp.StatusCode) && attempt < attempts-1 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return resp, err
}
