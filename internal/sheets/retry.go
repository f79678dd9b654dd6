package sheets

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/credentials"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/logging"
)

// maxTries is the first attempt plus one retry.
const maxTries = 2

// call runs fn with a per-attempt timeout and retries transient failures once.
// Calls that are not idempotent are only retried when Google rejected the
// first attempt outright. Errors come back classified.
func call[T any](ctx context.Context, c *Client, service, operation string, idempotent bool, fn func(context.Context) (T, error)) (res T, err error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, service, operation)
	start := time.Now()
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordGoogleAPIOperation(ctx, service, operation, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	attempt := func() (T, error) {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		v, err := fn(actx)
		if err == nil {
			return v, nil
		}
		mapped, transient := classify(err)
		if !transient || (!idempotent && !rejected(err)) {
			return v, backoff.Permanent(mapped)
		}
		return v, mapped
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait

	res, err = backoff.Retry(ctx, attempt,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.metrics.RecordGoogleAPIRetry(ctx, service, operation)
			c.logger.Debug("Retrying Google API call",
				logging.Service(service),
				logging.Operation(operation),
				slog.Duration("wait", wait),
				logging.Err(err))
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if err != nil && contacts.KindOf(err) == "" && !errors.Is(err, credentials.ErrAuthRequired) {
		err = contacts.RemoteUnavailable(err, "%s %s", service, operation)
	}
	return res, err
}
