package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/store"
	memorystore "github.com/wolfeidau/orgdir/internal/store/memory"
	postgresstore "github.com/wolfeidau/orgdir/internal/store/postgres"
	sqlitestore "github.com/wolfeidau/orgdir/internal/store/sqlite"
	"github.com/wolfeidau/orgdir/internal/transfer"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// StoreFlags select and configure the storage backend.
type StoreFlags struct {
	StoreType     string             `help:"store type (memory, sqlite or postgres)" default:"sqlite" env:"ORGDIR_STORE_TYPE" enum:"memory,sqlite,postgres"`
	SQLitePath    string             `help:"path to the SQLite database file" default:"./orgdir.db" env:"ORGDIR_SQLITE_PATH"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Transaction Configuration
	TxAttempts   int           `help:"attempts for transactions that hit a serialization failure" default:"5"`
	QueryTimeout time.Duration `help:"timeout for single read queries (0 disables)" default:"5s"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"ORGDIR_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// openStore opens the configured backend. The caller closes it.
func (f *StoreFlags) openStore(ctx context.Context) (store.Store, error) {
	switch f.StoreType {
	case "postgres":
		if err := f.PostgresStore.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}
		st, err := postgresstore.NewStore(ctx, postgresstore.Config{
			Pool: postgresstore.PoolConfig{
				ConnString:      f.PostgresStore.ConnString,
				MaxConns:        f.PostgresStore.MaxConns,
				MinConns:        f.PostgresStore.MinConns,
				MaxConnLifetime: f.PostgresStore.MaxConnLifetime,
				MaxConnIdleTime: f.PostgresStore.MaxConnIdleTime,
			},
			AutoMigrate:  f.PostgresStore.AutoMigrate,
			TxAttempts:   f.PostgresStore.TxAttempts,
			QueryTimeout: f.PostgresStore.QueryTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		log.Info().Msg("Using PostgreSQL store")
		return st, nil

	case "sqlite":
		st, err := sqlitestore.Open(ctx, f.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info().Str("path", f.SQLitePath).Msg("Using SQLite store")
		return st, nil

	default:
		log.Warn().Msg("Using in-memory store, data is lost on exit")
		return memorystore.NewStore(), nil
	}
}

// TransferFlags configure the transfer service.
type TransferFlags struct {
	TTL            time.Duration `help:"how long a transfer can be accepted after initiation" default:"168h" env:"ORGDIR_TRANSFER_TTL"`
	SweepBatchSize int           `help:"expired transfers loaded per sweep query" default:"100" env:"ORGDIR_SWEEP_BATCH_SIZE"`
}

func (f TransferFlags) config() transfer.Config {
	return transfer.Config{TTL: f.TTL, SweepBatchSize: f.SweepBatchSize}
}

func closeStore(st store.Store) {
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close store")
	}
}
