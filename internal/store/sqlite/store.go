package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
	"github.com/wolfeidau/orgdir/internal/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements store.Store over an embedded SQLite database.
//
// Transactions take the write lock when they begin (IMMEDIATE), so every
// transaction is serialized against other writers and status checks made
// inside one cannot be invalidated before commit.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_txlock=immediate" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if err := runMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Debug().Str("path", path).Msg("Opened sqlite store")

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn in an IMMEDIATE transaction, retrying when the database is busy.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.RetryTx(ctx, store.DefaultTxAttempts, isBusyError, func() error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer sqlTx.Rollback() //nolint:errcheck // rollback is safe to call after commit

		if err := fn(&tx{q: sqlTx}); err != nil {
			return err
		}

		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func (s *Store) reader() *tx {
	return &tx{q: s.db}
}

func (s *Store) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.reader().GetOrganization(ctx, orgID)
}

func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.reader().GetUser(ctx, userID)
}

func (s *Store) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	return s.reader().GetMembership(ctx, orgID, userID)
}

func (s *Store) GetTransfer(ctx context.Context, transferID uuid.UUID) (*models.OwnershipTransfer, error) {
	return s.reader().GetTransfer(ctx, transferID)
}

func (s *Store) GetPendingTransfer(ctx context.Context, orgID uuid.UUID) (*models.OwnershipTransfer, error) {
	return s.reader().GetPendingTransfer(ctx, orgID)
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, name, email, system_role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		user.UserID,
		user.Name,
		nullString(user.Email),
		string(user.SystemRole),
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return store.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("system_role", string(user.SystemRole)).
		Msg("Created user")

	return nil
}

// CreateOrganization inserts a new organization.
func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (org_id, name, owner_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		org.OrgID,
		org.Name,
		org.OwnerUserID,
		toMillis(org.CreatedAt),
		toMillis(org.UpdatedAt),
	)
	if err != nil {
		switch {
		case isForeignKeyError(err):
			return store.ErrUserNotFound
		case isConstraintError(err):
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// ListOrganizationsByOwner returns all organizations owned by a specific user.
func (s *Store) ListOrganizationsByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, name, owner_user_id, created_at, updated_at
		FROM organizations
		WHERE owner_user_id = ?
		ORDER BY created_at DESC
	`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, user_id, role, created_at, updated_at
		FROM memberships
		WHERE org_id = ?
		ORDER BY user_id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
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
		WHERE org_id = ? AND (? = '' OR status = ?)
		ORDER BY initiated_at DESC, transfer_id DESC
		LIMIT ? OFFSET ?
	`, orgID, status, status, filter.EffectiveLimit(), max(filter.Offset, 0))
}

// ListPendingTransfersForUser returns pending transfers the user initiated or received.
func (s *Store) ListPendingTransfersForUser(ctx context.Context, userID uuid.UUID) ([]*models.OwnershipTransfer, error) {
	return s.queryTransfers(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE status = 'pending' AND (from_user_id = ? OR to_user_id = ?)
		ORDER BY initiated_at DESC, transfer_id DESC
	`, userID, userID)
}

// ListExpiredPending returns pending transfers whose ExpiresAt is before now, oldest expiry first.
func (s *Store) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.OwnershipTransfer, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}

	return s.queryTransfers(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE status = 'pending' AND expires_at < ?
		ORDER BY expires_at
		LIMIT ?
	`, toMillis(now), limit)
}

// ListAuditEntries returns a transfer's audit entries, oldest first.
func (s *Store) ListAuditEntries(ctx context.Context, transferID uuid.UUID) ([]*models.TransferAuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, transfer_id, action, actor_id, actor_role, metadata, ip_address, user_agent, timestamp
		FROM transfer_audit_log
		WHERE transfer_id = ?
		ORDER BY timestamp, entry_id
	`, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
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
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
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

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
