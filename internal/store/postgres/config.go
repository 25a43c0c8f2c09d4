package postgres

import (
	"fmt"
	"time"
)

// Config holds configuration for the PostgreSQL store.
// Pool configuration is handled separately via PoolConfig.
type Config struct {
	Pool PoolConfig

	// AutoMigrate applies the bundled migrations when the store is opened.
	AutoMigrate bool

	// TxAttempts bounds how many times a transaction is retried after a
	// serialization failure or deadlock.
	// Default: store.DefaultTxAttempts
	TxAttempts int

	// QueryTimeout is the maximum time a single read may run.
	// Set to 0 to use context timeouts only.
	QueryTimeout time.Duration
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.TxAttempts < 0 {
		return fmt.Errorf("tx attempts must not be negative")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must not be negative")
	}
	return c.Pool.Validate()
}
