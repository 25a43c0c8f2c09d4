package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
)

var _ store.Tx = (*tx)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type tx struct {
	q querier
}

const transferColumns = `transfer_id, org_id, from_user_id, to_user_id, status, reason,
	cancellation_reason, initiated_at, expires_at, completed_at`

func (t *tx) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	row := t.q.QueryRow(ctx, `
		SELECT org_id, name, owner_user_id, created_at, updated_at
		FROM organizations
		WHERE org_id = $1
	`, orgID)

	org, err := scanOrganization(row)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return org, nil
}

func (t *tx) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var (
		user       models.User
		email      *string
		systemRole string
	)

	err := t.q.QueryRow(ctx, `
		SELECT user_id, name, email, system_role, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&user.UserID, &user.Name, &email, &systemRole, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	role, err := models.ParseSystemRole(systemRole)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}

	if email != nil {
		user.Email = *email
	}
	user.SystemRole = role
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()

	return &user, nil
}

func (t *tx) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	row := t.q.QueryRow(ctx, `
		SELECT org_id, user_id, role, created_at, updated_at
		FROM memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID)

	m, err := scanMembership(row)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", mapPostgresError(err))
	}

	return m, nil
}

func (t *tx) GetTransfer(ctx context.Context, transferID uuid.UUID) (*models.OwnershipTransfer, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE transfer_id = $1
	`, transferID)

	tr, err := scanTransfer(row)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to get transfer: %w", mapPostgresError(err))
	}

	return tr, nil
}

func (t *tx) GetPendingTransfer(ctx context.Context, orgID uuid.UUID) (*models.OwnershipTransfer, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE org_id = $1 AND status = 'pending'
	`, orgID)

	tr, err := scanTransfer(row)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to get pending transfer: %w", mapPostgresError(err))
	}

	return tr, nil
}

func (t *tx) SetOrganizationOwner(ctx context.Context, orgID, ownerUserID uuid.UUID, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE organizations SET owner_user_id = $1, updated_at = $2
		WHERE org_id = $3
	`, ownerUserID, at, orgID)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrUserNotFound) {
			return mapped
		}
		return fmt.Errorf("failed to set organization owner: %w", mapped)
	}

	if tag.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}
	return nil
}

func (t *tx) PutMembership(ctx context.Context, m *models.Membership) error {
	if err := store.CheckMembershipRole(m.Role); err != nil {
		return err
	}

	var owner uuid.UUID
	err := t.q.QueryRow(ctx, `SELECT owner_user_id FROM organizations WHERE org_id = $1`, m.OrgID).Scan(&owner)
	if err != nil {
		if isNoRows(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to check organization owner: %w", mapPostgresError(err))
	}
	if owner == m.UserID {
		return store.ErrOwnerMembership
	}

	_, err = t.q.Exec(ctx, `
		INSERT INTO memberships (org_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, user_id) DO UPDATE SET
			role = excluded.role,
			updated_at = excluded.updated_at
	`, m.OrgID, m.UserID, string(m.Role), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrUserNotFound) {
			return mapped
		}
		return fmt.Errorf("failed to put membership: %w", mapped)
	}

	return nil
}

func (t *tx) DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	_, err := t.q.Exec(ctx, `DELETE FROM memberships WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", mapPostgresError(err))
	}
	return nil
}

func (t *tx) CreateTransfer(ctx context.Context, tr *models.OwnershipTransfer) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO ownership_transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		tr.TransferID,
		tr.OrgID,
		tr.FromUserID,
		tr.ToUserID,
		tr.Status.String(),
		tr.Reason,
		tr.CancellationReason,
		tr.InitiatedAt,
		tr.ExpiresAt,
		tr.CompletedAt,
	)
	if err != nil {
		mapped := mapPostgresError(err)
		switch {
		case errors.Is(mapped, store.ErrPendingTransferExists):
			return mapped
		case errors.Is(mapped, store.ErrOrganizationNotFound), errors.Is(mapped, store.ErrUserNotFound):
			return fmt.Errorf("%w: unknown organization or user", store.ErrOrganizationNotFound)
		}
		return fmt.Errorf("failed to create transfer: %w", mapped)
	}

	return nil
}

func (t *tx) CompleteTransfer(ctx context.Context, tr *models.OwnershipTransfer) error {
	if !tr.Status.IsTerminal() {
		return fmt.Errorf("transfer %s: status %s is not terminal", tr.TransferID, tr.Status)
	}

	tag, err := t.q.Exec(ctx, `
		UPDATE ownership_transfers SET
			status = $1,
			completed_at = $2,
			cancellation_reason = $3
		WHERE transfer_id = $4 AND status = 'pending'
	`, tr.Status.String(), tr.CompletedAt, tr.CancellationReason, tr.TransferID)
	if err != nil {
		return fmt.Errorf("failed to complete transfer: %w", mapPostgresError(err))
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := t.GetTransfer(ctx, tr.TransferID); err != nil {
		return err
	}
	return store.ErrTransferNotPending
}

func (t *tx) AppendAuditEntry(ctx context.Context, e *models.TransferAuditEntry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	_, err := t.q.Exec(ctx, `
		INSERT INTO transfer_audit_log (
			entry_id, transfer_id, action, actor_id, actor_role, metadata, ip_address, user_agent, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		e.EntryID,
		e.TransferID,
		string(e.Action),
		e.ActorID,
		e.ActorRole,
		metadata,
		e.IPAddress,
		e.UserAgent,
		e.Timestamp,
	)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrTransferNotFound) {
			return mapped
		}
		return fmt.Errorf("failed to append audit entry: %w", mapped)
	}

	return nil
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	if err := row.Scan(&org.OrgID, &org.Name, &org.OwnerUserID, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	org.CreatedAt = org.CreatedAt.UTC()
	org.UpdatedAt = org.UpdatedAt.UTC()
	return &org, nil
}

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var (
		m    models.Membership
		role string
	)
	if err := row.Scan(&m.OrgID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	parsed, err := models.ParseMembershipRole(role)
	if err != nil {
		return nil, err
	}
	m.Role = parsed
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func scanTransfer(row pgx.Row) (*models.OwnershipTransfer, error) {
	var (
		tr     models.OwnershipTransfer
		status string
	)
	err := row.Scan(
		&tr.TransferID,
		&tr.OrgID,
		&tr.FromUserID,
		&tr.ToUserID,
		&status,
		&tr.Reason,
		&tr.CancellationReason,
		&tr.InitiatedAt,
		&tr.ExpiresAt,
		&tr.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	tr.Status, err = models.ParseTransferStatus(status)
	if err != nil {
		return nil, err
	}
	tr.InitiatedAt = tr.InitiatedAt.UTC()
	tr.ExpiresAt = tr.ExpiresAt.UTC()
	if tr.CompletedAt != nil {
		completed := tr.CompletedAt.UTC()
		tr.CompletedAt = &completed
	}

	return &tr, nil
}

func scanAuditEntry(row pgx.Row) (*models.TransferAuditEntry, error) {
	var (
		e      models.TransferAuditEntry
		action string
	)
	err := row.Scan(
		&e.EntryID,
		&e.TransferID,
		&action,
		&e.ActorID,
		&e.ActorRole,
		&e.Metadata,
		&e.IPAddress,
		&e.UserAgent,
		&e.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	e.Action = models.AuditAction(action)
	e.Timestamp = e.Timestamp.UTC()

	return &e, nil
}
