// Package retry runs calls against external services with exponential
// backoff on transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// Policy bounds a retry loop
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultPolicy suits store commits and third-party REST calls.
var DefaultPolicy = Policy{
	Initial:     250 * time.Millisecond,
	Max:         10 * time.Second,
	Multiplier:  2,
	MaxAttempts: 5,
}

// sleep is replaced in tests
var sleep = gax.Sleep

// Do calls fn until it succeeds, returns a permanent error, or the policy's
// attempts run out. The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	bo := gax.Backoff{Initial: p.Initial, Max: p.Max, Multiplier: p.Multiplier}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		if serr := sleep(ctx, bo.Pause()); serr != nil {
			return fmt.Errorf("retry interrupted: %w", err)
		}
	}
}

// IsTransient reports whether err is worth retrying: HTTP 429/5xx from an
// external API or a gRPC Unavailable, DeadlineExceeded, ResourceExhausted or
// Aborted status from the store.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}

	var grpcErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &grpcErr) {
		switch grpcErr.GRPCStatus().Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		}
	}
	return false
}
