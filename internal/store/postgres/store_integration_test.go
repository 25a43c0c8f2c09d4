//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
	"github.com/wolfeidau/orgdir/internal/store/storetest"
)

type testServer struct {
	host  string
	port  string
	admin *pgxpool.Pool
	seq   atomic.Int64
}

func setupPostgresContainer(t *testing.T, ctx context.Context) *testServer {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	admin, err := NewPool(ctx, &PoolConfig{ConnString: connString(host, port.Port(), "testdb"), MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(admin.Close)

	return &testServer{host: host, port: port.Port(), admin: admin}
}

func connString(host, port, db string) string {
	return fmt.Sprintf("postgres://test:test@%s:%s/%s?sslmode=disable", host, port, db)
}

// newStore creates an empty database on the server and opens a migrated store on it.
func (ts *testServer) newStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	dbName := fmt.Sprintf("orgdir_%d", ts.seq.Add(1))
	_, err := ts.admin.Exec(ctx, "CREATE DATABASE "+dbName)
	require.NoError(t, err)

	st, err := NewStore(ctx, Config{
		Pool:        PoolConfig{ConnString: connString(ts.host, ts.port, dbName), MinConns: 1, MaxConns: 10},
		AutoMigrate: true, // Enable migrations for tests
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})

	return st
}

func TestIntegration_StoreBehaviour(t *testing.T) {
	ctx := context.Background()
	ts := setupPostgresContainer(t, ctx)

	storetest.Run(t, func(t *testing.T) store.Store {
		return ts.newStore(t)
	})
}

func TestIntegration_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	ts := setupPostgresContainer(t, ctx)
	st := ts.newStore(t)

	require.NoError(t, runMigrations(ctx, st.pool))

	migrations, err := loadMigrations()
	require.NoError(t, err)

	var applied int
	require.NoError(t, st.pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&applied))
	require.Equal(t, len(migrations), applied)
}

func TestIntegration_HistoryIsImmutable(t *testing.T) {
	ctx := context.Background()
	ts := setupPostgresContainer(t, ctx)
	st := ts.newStore(t)

	f := storetest.NewFixture(t, st)
	tr := f.PendingTransfer(storetest.Epoch)

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateTransfer(ctx, tr); err != nil {
			return err
		}
		return tx.AppendAuditEntry(ctx, &models.TransferAuditEntry{
			EntryID:    uuid.Must(uuid.NewV7()),
			TransferID: tr.TransferID,
			Action:     models.AuditInitiated,
			ActorID:    f.Owner.UserID,
			ActorRole:  models.ActorRoleInitiator,
			Timestamp:  storetest.Epoch,
		})
	}))

	_, err := st.pool.Exec(ctx, `UPDATE transfer_audit_log SET action = 'accepted'`)
	require.ErrorContains(t, err, "append-only")

	_, err = st.pool.Exec(ctx, `DELETE FROM transfer_audit_log`)
	require.ErrorContains(t, err, "append-only")

	_, err = st.pool.Exec(ctx, `DELETE FROM ownership_transfers`)
	require.ErrorContains(t, err, "retained")
}

func TestIntegration_SelfTransferRejected(t *testing.T) {
	ctx := context.Background()
	ts := setupPostgresContainer(t, ctx)
	st := ts.newStore(t)

	f := storetest.NewFixture(t, st)
	tr := f.PendingTransfer(storetest.Epoch)
	tr.ToUserID = tr.FromUserID

	err := st.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateTransfer(ctx, tr)
	})
	require.ErrorContains(t, err, "ownership_transfers_distinct_parties")
}
