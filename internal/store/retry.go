package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/telemetry"
)

// DefaultTxAttempts is how many times a transaction is tried when the
// database reports a serialization conflict.
const DefaultTxAttempts = 5

// RetryTx runs attempt until it succeeds, fails with an error retryable does
// not accept, or the attempts are exhausted. Only storage-level conflicts
// (serialization failures, busy databases) are retried; business errors
// returned by a transaction callback are returned as-is on the first try.
func RetryTx(ctx context.Context, maxAttempts int, retryable func(error) bool, attempt func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultTxAttempts
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	tries := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		err := attempt()
		if err == nil {
			return struct{}{}, nil
		}
		if !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		telemetry.GetMetrics().TxConflictsTotal.Add(ctx, 1)
		log.Debug().Err(err).Int("attempt", tries).Msg("Retrying transaction after conflict")
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
	)

	return err
}
