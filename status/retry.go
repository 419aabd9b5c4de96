package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryReporter wraps a Reporter with retries. Forge APIs drop requests
// often enough that a failed status post is usually transient.
type RetryReporter struct {
	Reporter Reporter
	Attempts uint
	Delay    time.Duration
}

// NewRetryReporter wraps reporter with up to attempts tries per update.
func NewRetryReporter(reporter Reporter, attempts uint) *RetryReporter {
	return &RetryReporter{
		Reporter: reporter,
		Attempts: attempts,
		Delay:    time.Second,
	}
}

// Report implements Reporter.
func (r *RetryReporter) Report(ctx context.Context, update Update) error {
	return retry.Do(
		func() error {
			return r.Reporter.Report(ctx, update)
		},
		retry.Context(ctx),
		retry.Attempts(r.Attempts),
		retry.Delay(r.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("status post failed, retrying",
				"attempt", n+1,
				"commit", update.Commit,
				"error", err,
			)
		}),
	)
}
