package tools

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to attempts times, sleeping delay between failures.
// It stops early when the context is cancelled and returns the last error.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w", i+1, err)
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, err)
}
