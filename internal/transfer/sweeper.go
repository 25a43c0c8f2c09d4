package transfer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often Sweeper runs ExpireOld.
const DefaultSweepInterval = time.Minute

// Expirer expires stale pending transfers.
type Expirer interface {
	ExpireOld(ctx context.Context) (int, error)
}

// Sweeper runs ExpireOld on a fixed interval.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
}

// NewSweeper creates a sweeper. interval <= 0 uses DefaultSweepInterval.
func NewSweeper(expirer Expirer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{expirer: expirer, interval: interval}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("Starting transfer expiry sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping transfer expiry sweeper")
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.expirer.ExpireOld(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Int("expired", n).Msg("Transfer expiry sweep failed")
		return
	}
	log.Debug().Int("expired", n).Msg("Transfer expiry sweep finished")
}
