package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrRetriesExhausted = errors.New("AI service unavailable")

var defaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

type retryPolicy struct {
	delays []time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy() retryPolicy {
	return retryPolicy{delays: defaultRetryDelays, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do calls fn until it succeeds, fails permanently, or the delays run out.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	for attempt := 0; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !isTransient(err) {
			return "", err
		}
		if attempt >= len(p.delays) {
			return "", fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, attempt, err)
		}
		if err := p.sleep(ctx, p.delays[attempt]); err != nil {
			return "", err
		}
	}
}

// isTransient reports rate limiting, server-side failures and network errors.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrMissingAPIKey) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.StatusCode)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return transientStatus(gErr.Code)
	}
	var aErr *apierror.APIError
	if errors.As(err, &aErr) {
		if code := aErr.HTTPCode(); code > 0 {
			return transientStatus(code)
		}
		if st := aErr.GRPCStatus(); st != nil {
			return transientCode(st.Code())
		}
	}
	if st, ok := status.FromError(err); ok {
		return transientCode(st.Code())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func transientCode(c codes.Code) bool {
	switch c {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return true
	}
	return false
}
