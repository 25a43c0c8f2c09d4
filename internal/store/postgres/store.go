package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on PostgreSQL.
//
// WithTx runs SERIALIZABLE transactions. A transaction that loses a race with
// a concurrent one is rolled back and its callback run again.
type Store struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewStore connects to PostgreSQL and, if cfg.AutoMigrate is set, applies
// the bundled migrations.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}
	if cfg.TxAttempts == 0 {
		cfg.TxAttempts = store.DefaultTxAttempts
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	log.Info().
		Int32("max_conns", cfg.Pool.MaxConns).
		Str("application_name", cfg.Pool.ApplicationName).
		Bool("auto_migrate", cfg.AutoMigrate).
		Msg("Connected to postgres store")

	return &Store{pool: pool, cfg: cfg}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// WithTx runs fn in a SERIALIZABLE transaction, retrying on serialization
// failures and deadlocks.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.RetryTx(ctx, s.cfg.TxAttempts, isRetryable, func() error {
		pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer pgTx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

		if err := fn(&tx{q: pgTx}); err != nil {
			return err
		}

		if err := pgTx.Commit(ctx); err != nil {
			return mapPostgresError(err)
		}
		return nil
	})
}

// withTimeout applies the configured query timeout to reads outside a transaction.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

func (s *Store) reader() *tx {
	return &tx{q: s.pool}
}

func (s *Store) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.reader().GetOrganization(ctx, orgID)
}

func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.reader().GetUser(ctx, userID)
}

func (s *Store) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.reader().GetMembership(ctx, orgID, userID)
}

func (s *Store) GetTransfer(ctx context.Context, transferID uuid.UUID) (*models.OwnershipTransfer, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.reader().GetTransfer(ctx, transferID)
}

func (s *Store) GetPendingTransfer(ctx context.Context, orgID uuid.UUID) (*models.OwnershipTransfer, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.reader().GetPendingTransfer(ctx, orgID)
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, name, email, system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.UserID,
		user.Name,
		nullString(user.Email),
		string(user.SystemRole),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrUserAlreadyExists) {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", mapped)
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("system_role", string(user.SystemRole)).
		Msg("Created user")

	return nil
}

// CreateOrganization inserts a new organization.
func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO organizations (org_id, name, owner_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		org.OrgID,
		org.Name,
		org.OwnerUserID,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrUserNotFound) || errors.Is(mapped, store.ErrOrganizationAlreadyExists) {
			return mapped
		}
		return fmt.Errorf("failed to create organization: %w", mapped)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// ListOrganizationsByOwner returns all organizations owned by a specific user.
func (s *Store) ListOrganizationsByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT org_id, name, owner_user_id, created_at, updated_at
		FROM organizations
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
	`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}

	return orgs, nil
}

// PutMembership inserts or updates a membership in its own transaction.
func (s *Store) PutMembership(ctx context.Context, m *models.Membership) error {
	return s.WithTx(ctx, func(t store.Tx) error {
		return t.PutMembership(ctx, m)
	})
}

// ListMemberships returns the memberships of an organization ordered by user ID.
func (s *Store) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT org_id, user_id, role, created_at, updated_at
		FROM memberships
		WHERE org_id = $1
		ORDER BY user_id::text
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var result []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	return result, nil
}

// ListTransfers returns an organization's transfers, newest first.
func (s *Store) ListTransfers(ctx context.Context, orgID uuid.UUID, filter store.TransferFilter) ([]*models.OwnershipTransfer, error) {
	status := ""
	if filter.Status != 0 {
		status = filter.Status.String()
	}

	return s.queryTransfers(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE org_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY initiated_at DESC, transfer_id::text DESC
		LIMIT $3 OFFSET $4
	`, orgID, status, filter.EffectiveLimit(), max(filter.Offset, 0))
}

// ListPendingTransfersForUser returns pending transfers the user initiated or received.
func (s *Store) ListPendingTransfersForUser(ctx context.Context, userID uuid.UUID) ([]*models.OwnershipTransfer, error) {
	return s.queryTransfers(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE status = 'pending' AND (from_user_id = $1 OR to_user_id = $1)
		ORDER BY initiated_at DESC, transfer_id::text DESC
	`, userID)
}

// ListExpiredPending returns pending transfers whose ExpiresAt is before now, oldest expiry first.
func (s *Store) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.OwnershipTransfer, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	return s.queryTransfers(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limitArg)
}

// ListAuditEntries returns a transfer's audit entries, oldest first.
func (s *Store) ListAuditEntries(ctx context.Context, transferID uuid.UUID) ([]*models.TransferAuditEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, transfer_id, action, actor_id, actor_role, metadata, ip_address, user_agent, timestamp
		FROM transfer_audit_log
		WHERE transfer_id = $1
		ORDER BY timestamp, entry_id::text
	`, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", mapPostgresError(err))
	}
	defer rows.Close()

	entries := []*models.TransferAuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

func (s *Store) queryTransfers(ctx context.Context, query string, args ...any) ([]*models.OwnershipTransfer, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var transfers []*models.OwnershipTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}

	return transfers, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
