// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) store.Store

// Fixture is a small directory: an organization owned by Owner, with Member
// holding an editor membership and Outsider holding nothing.
type Fixture struct {
	Org      *models.Organization
	Owner    *models.User
	Member   *models.User
	Outsider *models.User
}

// Epoch is the base time used by fixtures. Stores are expected to keep at
// least millisecond precision.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// NewUser creates and stores a user with the given system role.
func NewUser(t *testing.T, st store.Store, name string, role models.SystemRole) *models.User {
	t.Helper()

	u := &models.User{
		UserID:     uuid.Must(uuid.NewV7()),
		Name:       name,
		Email:      name + "@example.com",
		SystemRole: role,
		CreatedAt:  Epoch,
		UpdatedAt:  Epoch,
	}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

// NewFixture seeds a Fixture into st.
func NewFixture(t *testing.T, st store.Store) *Fixture {
	t.Helper()
	ctx := context.Background()

	f := &Fixture{
		Owner:    NewUser(t, st, "owner-"+uuid.NewString()[:8], models.SystemRoleUser),
		Member:   NewUser(t, st, "member-"+uuid.NewString()[:8], models.SystemRoleUser),
		Outsider: NewUser(t, st, "outsider-"+uuid.NewString()[:8], models.SystemRoleUser),
	}

	f.Org = &models.Organization{
		OrgID:       uuid.Must(uuid.NewV7()),
		Name:        "Acme",
		OwnerUserID: f.Owner.UserID,
		CreatedAt:   Epoch,
		UpdatedAt:   Epoch,
	}
	require.NoError(t, st.CreateOrganization(ctx, f.Org))

	require.NoError(t, st.PutMembership(ctx, &models.Membership{
		OrgID:     f.Org.OrgID,
		UserID:    f.Member.UserID,
		Role:      models.RoleEditor,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}))

	return f
}

// PendingTransfer builds an unsaved pending transfer from the owner to the member.
func (f *Fixture) PendingTransfer(initiatedAt time.Time) *models.OwnershipTransfer {
	return &models.OwnershipTransfer{
		TransferID:  uuid.Must(uuid.NewV7()),
		OrgID:       f.Org.OrgID,
		FromUserID:  f.Owner.UserID,
		ToUserID:    f.Member.UserID,
		Status:      models.TransferPending,
		Reason:      "Succession planning 101",
		InitiatedAt: initiatedAt,
		ExpiresAt:   initiatedAt.Add(models.DefaultTransferTTL),
	}
}

func createTransfer(t *testing.T, st store.Store, tr *models.OwnershipTransfer) {
	t.Helper()
	require.NoError(t, st.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateTransfer(context.Background(), tr)
	}))
}

// Run executes the shared behaviour tests against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("users and organizations", func(t *testing.T) { testDirectory(t, newStore(t)) })
	t.Run("memberships", func(t *testing.T) { testMemberships(t, newStore(t)) })
	t.Run("one pending transfer per organization", func(t *testing.T) { testPendingConstraint(t, newStore(t)) })
	t.Run("concurrent creates keep one pending", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("complete transfer", func(t *testing.T) { testCompleteTransfer(t, newStore(t)) })
	t.Run("rollback on error", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("list transfers", func(t *testing.T) { testListTransfers(t, newStore(t)) })
	t.Run("list expired pending", func(t *testing.T) { testListExpiredPending(t, newStore(t)) })
	t.Run("audit entries", func(t *testing.T) { testAuditEntries(t, newStore(t)) })
}

func testDirectory(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)

	org, err := st.GetOrganization(ctx, f.Org.OrgID)
	require.NoError(t, err)
	require.Equal(t, f.Owner.UserID, org.OwnerUserID)
	require.Equal(t, "Acme", org.Name)

	user, err := st.GetUser(ctx, f.Owner.UserID)
	require.NoError(t, err)
	require.Equal(t, models.SystemRoleUser, user.SystemRole)
	require.Equal(t, f.Owner.Email, user.Email)

	_, err = st.GetUser(ctx, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrUserNotFound)

	_, err = st.GetOrganization(ctx, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)

	err = st.CreateUser(ctx, f.Owner)
	require.ErrorIs(t, err, store.ErrUserAlreadyExists)

	err = st.CreateOrganization(ctx, f.Org)
	require.ErrorIs(t, err, store.ErrOrganizationAlreadyExists)

	owned, err := st.ListOrganizationsByOwner(ctx, f.Owner.UserID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, f.Org.OrgID, owned[0].OrgID)
}

func testMemberships(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)

	m, err := st.GetMembership(ctx, f.Org.OrgID, f.Member.UserID)
	require.NoError(t, err)
	require.Equal(t, models.RoleEditor, m.Role)

	_, err = st.GetMembership(ctx, f.Org.OrgID, f.Outsider.UserID)
	require.ErrorIs(t, err, store.ErrMembershipNotFound)

	t.Run("owner cannot hold a membership", func(t *testing.T) {
		err := st.PutMembership(ctx, &models.Membership{
			OrgID: f.Org.OrgID, UserID: f.Owner.UserID, Role: models.RoleAdmin, CreatedAt: Epoch, UpdatedAt: Epoch,
		})
		require.ErrorIs(t, err, store.ErrOwnerMembership)
	})

	t.Run("owner is not a membership role", func(t *testing.T) {
		err := st.PutMembership(ctx, &models.Membership{
			OrgID: f.Org.OrgID, UserID: f.Outsider.UserID, Role: models.RoleOwner, CreatedAt: Epoch, UpdatedAt: Epoch,
		})
		require.ErrorIs(t, err, store.ErrInvalidMembershipRole)
	})

	t.Run("put updates role", func(t *testing.T) {
		require.NoError(t, st.PutMembership(ctx, &models.Membership{
			OrgID: f.Org.OrgID, UserID: f.Member.UserID, Role: models.RoleAdmin, CreatedAt: Epoch, UpdatedAt: Epoch.Add(time.Hour),
		}))

		m, err := st.GetMembership(ctx, f.Org.OrgID, f.Member.UserID)
		require.NoError(t, err)
		require.Equal(t, models.RoleAdmin, m.Role)

		all, err := st.ListMemberships(ctx, f.Org.OrgID)
		require.NoError(t, err)
		require.Len(t, all, 1)
	})

	t.Run("delete missing membership is not an error", func(t *testing.T) {
		require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
			return tx.DeleteMembership(ctx, f.Org.OrgID, f.Outsider.UserID)
		}))
	})
}

func testPendingConstraint(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)

	first := f.PendingTransfer(Epoch)
	createTransfer(t, st, first)

	second := f.PendingTransfer(Epoch.Add(time.Minute))
	second.ToUserID = f.Outsider.UserID
	err := st.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateTransfer(ctx, second)
	})
	require.ErrorIs(t, err, store.ErrPendingTransferExists)

	pending, err := st.GetPendingTransfer(ctx, f.Org.OrgID)
	require.NoError(t, err)
	require.Equal(t, first.TransferID, pending.TransferID)

	// Once the first is terminal a new one may be created.
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		completed := Epoch.Add(time.Hour)
		first.Status = models.TransferCancelled
		first.CompletedAt = &completed
		return tx.CompleteTransfer(ctx, first)
	}))
	createTransfer(t, st, second)
}

func testConcurrentCreate(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := f.PendingTransfer(Epoch)
			err := st.WithTx(ctx, func(tx store.Tx) error {
				return tx.CreateTransfer(ctx, tr)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrPendingTransferExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)

	all, err := st.ListTransfers(ctx, f.Org.OrgID, store.TransferFilter{Status: models.TransferPending})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func testCompleteTransfer(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)

	tr := f.PendingTransfer(Epoch)
	createTransfer(t, st, tr)

	completed := Epoch.Add(2 * time.Hour)
	reason := "changed my mind"
	tr.Status = models.TransferCancelled
	tr.CompletedAt = &completed
	tr.CancellationReason = &reason
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		return tx.CompleteTransfer(ctx, tr)
	}))

	got, err := st.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	require.Equal(t, models.TransferCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.True(t, completed.Equal(*got.CompletedAt))
	require.NotNil(t, got.CancellationReason)
	require.Equal(t, reason, *got.CancellationReason)
	require.True(t, tr.ExpiresAt.Equal(got.ExpiresAt))

	_, err = st.GetPendingTransfer(ctx, f.Org.OrgID)
	require.ErrorIs(t, err, store.ErrTransferNotFound)

	// A second terminal write observes the committed status.
	tr.Status = models.TransferAccepted
	err = st.WithTx(ctx, func(tx store.Tx) error {
		return tx.CompleteTransfer(ctx, tr)
	})
	require.ErrorIs(t, err, store.ErrTransferNotPending)

	got, err = st.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	require.Equal(t, models.TransferCancelled, got.Status)

	_, err = st.GetTransfer(ctx, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrTransferNotFound)
}

func testRollback(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)

	tr := f.PendingTransfer(Epoch)
	createTransfer(t, st, tr)

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.SetOrganizationOwner(ctx, f.Org.OrgID, f.Member.UserID, Epoch.Add(time.Hour)); err != nil {
			return err
		}
		if err := tx.DeleteMembership(ctx, f.Org.OrgID, f.Member.UserID); err != nil {
			return err
		}
		if err := tx.PutMembership(ctx, &models.Membership{
			OrgID: f.Org.OrgID, UserID: f.Owner.UserID, Role: models.RoleAdmin, CreatedAt: Epoch, UpdatedAt: Epoch,
		}); err != nil {
			return err
		}
		completed := Epoch.Add(time.Hour)
		tr.Status = models.TransferAccepted
		tr.CompletedAt = &completed
		if err := tx.CompleteTransfer(ctx, tr); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	org, err := st.GetOrganization(ctx, f.Org.OrgID)
	require.NoError(t, err)
	require.Equal(t, f.Owner.UserID, org.OwnerUserID)

	m, err := st.GetMembership(ctx, f.Org.OrgID, f.Member.UserID)
	require.NoError(t, err)
	require.Equal(t, models.RoleEditor, m.Role)

	_, err = st.GetMembership(ctx, f.Org.OrgID, f.Owner.UserID)
	require.ErrorIs(t, err, store.ErrMembershipNotFound)

	got, err := st.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	require.Equal(t, models.TransferPending, got.Status)
	require.Nil(t, got.CompletedAt)
}

func testListTransfers(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		tr := f.PendingTransfer(Epoch.Add(time.Duration(i) * time.Hour))
		createTransfer(t, st, tr)
		ids = append(ids, tr.TransferID)
		if i < 2 {
			completed := tr.InitiatedAt.Add(time.Minute)
			tr.Status = models.TransferRejected
			tr.CompletedAt = &completed
			require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
				return tx.CompleteTransfer(ctx, tr)
			}))
		}
	}

	all, err := st.ListTransfers(ctx, f.Org.OrgID, store.TransferFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, ids[2], all[0].TransferID)
	require.Equal(t, ids[0], all[2].TransferID)

	rejected, err := st.ListTransfers(ctx, f.Org.OrgID, store.TransferFilter{Status: models.TransferRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 2)

	page, err := st.ListTransfers(ctx, f.Org.OrgID, store.TransferFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ids[1], page[0].TransferID)

	mine, err := st.ListPendingTransfersForUser(ctx, f.Member.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, ids[2], mine[0].TransferID)

	theirs, err := st.ListPendingTransfersForUser(ctx, f.Outsider.UserID)
	require.NoError(t, err)
	require.Empty(t, theirs)

	other, err := st.ListTransfers(ctx, uuid.Must(uuid.NewV7()), store.TransferFilter{})
	require.NoError(t, err)
	require.Empty(t, other)
}

func testListExpiredPending(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)
	g := NewFixture(t, st)

	stale := f.PendingTransfer(Epoch)
	createTransfer(t, st, stale)

	fresh := g.PendingTransfer(Epoch.Add(6 * 24 * time.Hour))
	createTransfer(t, st, fresh)

	now := Epoch.Add(models.DefaultTransferTTL + time.Hour)
	expired, err := st.ListExpiredPending(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, stale.TransferID, expired[0].TransferID)

	// Exactly at the deadline is not yet expired.
	expired, err = st.ListExpiredPending(ctx, stale.ExpiresAt, 100)
	require.NoError(t, err)
	require.Empty(t, expired)
}

func testAuditEntries(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := NewFixture(t, st)

	tr := f.PendingTransfer(Epoch)
	createTransfer(t, st, tr)

	entries := []*models.TransferAuditEntry{
		{
			EntryID:    uuid.Must(uuid.NewV7()),
			TransferID: tr.TransferID,
			Action:     models.AuditInitiated,
			ActorID:    f.Owner.UserID,
			ActorRole:  models.ActorRoleOwner,
			Metadata:   map[string]string{"reason": tr.Reason},
			IPAddress:  "10.0.0.1",
			UserAgent:  "curl/8.0",
			Timestamp:  Epoch,
		},
		{
			EntryID:    uuid.Must(uuid.NewV7()),
			TransferID: tr.TransferID,
			Action:     models.AuditExpired,
			ActorID:    uuid.Nil,
			ActorRole:  models.ActorRoleSystem,
			Timestamp:  Epoch.Add(time.Hour),
		},
	}
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		for _, e := range entries {
			if err := tx.AppendAuditEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	got, err := st.ListAuditEntries(ctx, tr.TransferID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, models.AuditInitiated, got[0].Action)
	require.Equal(t, "Succession planning 101", got[0].Metadata["reason"])
	require.Equal(t, "10.0.0.1", got[0].IPAddress)
	require.Equal(t, "curl/8.0", got[0].UserAgent)
	require.True(t, Epoch.Equal(got[0].Timestamp))
	require.Equal(t, models.AuditExpired, got[1].Action)
	require.Equal(t, uuid.Nil, got[1].ActorID)
	require.Equal(t, models.ActorRoleSystem, got[1].ActorRole)

	none, err := st.ListAuditEntries(ctx, uuid.Must(uuid.NewV7()))
	require.NoError(t, err)
	require.Empty(t, none)
}
