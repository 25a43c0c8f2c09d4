package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolConfigDefaults(t *testing.T) {
	cfg := PoolConfig{ConnString: "postgres://localhost/orgdir"}
	cfg.ApplyDefaults()

	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultApplicationName, cfg.ApplicationName)
	require.Equal(t, int32(20), cfg.MaxConns)
	require.Equal(t, int32(2), cfg.MinConns)
	require.Equal(t, time.Hour, cfg.MaxConnLifetime)
	require.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestPoolConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  PoolConfig
	}{
		{name: "missing conn string", cfg: PoolConfig{}},
		{name: "negative conns", cfg: PoolConfig{ConnString: "postgres://localhost/orgdir", MaxConns: -1}},
		{name: "min above max", cfg: PoolConfig{ConnString: "postgres://localhost/orgdir", MinConns: 10, MaxConns: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.cfg.Validate())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Pool: PoolConfig{ConnString: "postgres://localhost/orgdir"}}
	require.NoError(t, cfg.Validate())

	cfg.TxAttempts = -1
	require.Error(t, cfg.Validate())

	cfg.TxAttempts = 0
	cfg.QueryTimeout = -time.Second
	require.Error(t, cfg.Validate())
}

func TestNewPoolRejectsBadConfig(t *testing.T) {
	_, err := NewPool(context.Background(), nil)
	require.Error(t, err)

	_, err = NewPool(context.Background(), &PoolConfig{})
	require.Error(t, err)
}

func TestNewStoreRejectsBadConfig(t *testing.T) {
	_, err := NewStore(context.Background(), Config{})
	require.Error(t, err)
}
