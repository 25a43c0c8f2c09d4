package transfer

import (
	"fmt"
	"time"

	"github.com/wolfeidau/orgdir/internal/models"
)

// DefaultSweepBatchSize is how many expired transfers one sweep query loads.
const DefaultSweepBatchSize = 100

// Config holds the tunables of the transfer service.
type Config struct {
	// TTL is how long a transfer stays acceptable after initiation.
	// Default: models.DefaultTransferTTL (7 days)
	TTL time.Duration

	// SweepBatchSize bounds each ListExpiredPending query made by ExpireOld.
	// Default: DefaultSweepBatchSize
	SweepBatchSize int

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.TTL == 0 {
		c.TTL = models.DefaultTransferTTL
	}
	if c.SweepBatchSize == 0 {
		c.SweepBatchSize = DefaultSweepBatchSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.TTL < time.Minute {
		return fmt.Errorf("transfer ttl must be at least a minute, got %s", c.TTL)
	}
	if c.SweepBatchSize < 1 {
		return fmt.Errorf("sweep batch size must be positive")
	}
	return nil
}
