package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
)

var _ store.Tx = (*tx)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tx struct {
	q querier
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const transferColumns = `transfer_id, org_id, from_user_id, to_user_id, status, reason,
	cancellation_reason, initiated_at, expires_at, completed_at`

func (t *tx) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT org_id, name, owner_user_id, created_at, updated_at
		FROM organizations
		WHERE org_id = ?
	`, orgID)

	org, err := scanOrganization(row)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

func (t *tx) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var (
		user       models.User
		email      sql.NullString
		systemRole string
		createdAt  int64
		updatedAt  int64
	)

	err := t.q.QueryRowContext(ctx, `
		SELECT user_id, name, email, system_role, created_at, updated_at
		FROM users
		WHERE user_id = ?
	`, userID).Scan(&user.UserID, &user.Name, &email, &systemRole, &createdAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	role, err := models.ParseSystemRole(systemRole)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}

	user.Email = email.String
	user.SystemRole = role
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)

	return &user, nil
}

func (t *tx) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT org_id, user_id, role, created_at, updated_at
		FROM memberships
		WHERE org_id = ? AND user_id = ?
	`, orgID, userID)

	m, err := scanMembership(row)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

func (t *tx) GetTransfer(ctx context.Context, transferID uuid.UUID) (*models.OwnershipTransfer, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE transfer_id = ?
	`, transferID)

	tr, err := scanTransfer(row)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}

	return tr, nil
}

func (t *tx) GetPendingTransfer(ctx context.Context, orgID uuid.UUID) (*models.OwnershipTransfer, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT `+transferColumns+`
		FROM ownership_transfers
		WHERE org_id = ? AND status = 'pending'
	`, orgID)

	tr, err := scanTransfer(row)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to get pending transfer: %w", err)
	}

	return tr, nil
}

func (t *tx) SetOrganizationOwner(ctx context.Context, orgID, ownerUserID uuid.UUID, at time.Time) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE organizations SET owner_user_id = ?, updated_at = ?
		WHERE org_id = ?
	`, ownerUserID, toMillis(at), orgID)
	if err != nil {
		if isForeignKeyError(err) {
			return store.ErrUserNotFound
		}
		return fmt.Errorf("failed to set organization owner: %w", err)
	}

	return requireRow(result, store.ErrOrganizationNotFound)
}

func (t *tx) PutMembership(ctx context.Context, m *models.Membership) error {
	if err := store.CheckMembershipRole(m.Role); err != nil {
		return err
	}

	var owner uuid.UUID
	err := t.q.QueryRowContext(ctx, `SELECT owner_user_id FROM organizations WHERE org_id = ?`, m.OrgID).Scan(&owner)
	if err != nil {
		if isNoRows(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to check organization owner: %w", err)
	}
	if owner == m.UserID {
		return store.ErrOwnerMembership
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO memberships (org_id, user_id, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (org_id, user_id) DO UPDATE SET
			role = excluded.role,
			updated_at = excluded.updated_at
	`, m.OrgID, m.UserID, string(m.Role), toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return store.ErrUserNotFound
		}
		return fmt.Errorf("failed to put membership: %w", err)
	}

	return nil
}

func (t *tx) DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	_, err := t.q.ExecContext(ctx, `DELETE FROM memberships WHERE org_id = ? AND user_id = ?`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return nil
}

func (t *tx) CreateTransfer(ctx context.Context, tr *models.OwnershipTransfer) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO ownership_transfers (`+transferColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tr.TransferID,
		tr.OrgID,
		tr.FromUserID,
		tr.ToUserID,
		tr.Status.String(),
		tr.Reason,
		tr.CancellationReason,
		toMillis(tr.InitiatedAt),
		toMillis(tr.ExpiresAt),
		nullMillis(tr.CompletedAt),
	)
	if err != nil {
		switch {
		case isPendingConstraint(err):
			return store.ErrPendingTransferExists
		case isForeignKeyError(err):
			return fmt.Errorf("%w: unknown organization or user", store.ErrOrganizationNotFound)
		}
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	return nil
}

func (t *tx) CompleteTransfer(ctx context.Context, tr *models.OwnershipTransfer) error {
	if !tr.Status.IsTerminal() {
		return fmt.Errorf("transfer %s: status %s is not terminal", tr.TransferID, tr.Status)
	}

	result, err := t.q.ExecContext(ctx, `
		UPDATE ownership_transfers SET
			status = ?,
			completed_at = ?,
			cancellation_reason = ?
		WHERE transfer_id = ? AND status = 'pending'
	`, tr.Status.String(), nullMillis(tr.CompletedAt), tr.CancellationReason, tr.TransferID)
	if err != nil {
		return fmt.Errorf("failed to complete transfer: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := t.GetTransfer(ctx, tr.TransferID); err != nil {
		return err
	}
	return store.ErrTransferNotPending
}

func (t *tx) AppendAuditEntry(ctx context.Context, e *models.TransferAuditEntry) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}
	if e.Metadata == nil {
		metadata = []byte("{}")
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO transfer_audit_log (
			entry_id, transfer_id, action, actor_id, actor_role, metadata, ip_address, user_agent, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.EntryID,
		e.TransferID,
		string(e.Action),
		e.ActorID,
		e.ActorRole,
		string(metadata),
		e.IPAddress,
		e.UserAgent,
		toMillis(e.Timestamp),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return store.ErrTransferNotFound
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

func scanOrganization(row scanner) (*models.Organization, error) {
	var (
		org       models.Organization
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&org.OrgID, &org.Name, &org.OwnerUserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	org.CreatedAt = fromMillis(createdAt)
	org.UpdatedAt = fromMillis(updatedAt)
	return &org, nil
}

func scanMembership(row scanner) (*models.Membership, error) {
	var (
		m         models.Membership
		role      string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&m.OrgID, &m.UserID, &role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsed, err := models.ParseMembershipRole(role)
	if err != nil {
		return nil, err
	}
	m.Role = parsed
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return &m, nil
}

func scanTransfer(row scanner) (*models.OwnershipTransfer, error) {
	var (
		tr                 models.OwnershipTransfer
		status             string
		cancellationReason sql.NullString
		initiatedAt        int64
		expiresAt          int64
		completedAt        sql.NullInt64
	)
	err := row.Scan(
		&tr.TransferID,
		&tr.OrgID,
		&tr.FromUserID,
		&tr.ToUserID,
		&status,
		&tr.Reason,
		&cancellationReason,
		&initiatedAt,
		&expiresAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	tr.Status, err = models.ParseTransferStatus(status)
	if err != nil {
		return nil, err
	}
	if cancellationReason.Valid {
		reason := cancellationReason.String
		tr.CancellationReason = &reason
	}
	tr.InitiatedAt = fromMillis(initiatedAt)
	tr.ExpiresAt = fromMillis(expiresAt)
	if completedAt.Valid {
		completed := fromMillis(completedAt.Int64)
		tr.CompletedAt = &completed
	}

	return &tr, nil
}

func scanAuditEntry(row scanner) (*models.TransferAuditEntry, error) {
	var (
		e         models.TransferAuditEntry
		action    string
		metadata  string
		timestamp int64
	)
	err := row.Scan(
		&e.EntryID,
		&e.TransferID,
		&action,
		&e.ActorID,
		&e.ActorRole,
		&metadata,
		&e.IPAddress,
		&e.UserAgent,
		&timestamp,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
	}
	e.Action = models.AuditAction(action)
	e.Timestamp = fromMillis(timestamp)

	return &e, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
