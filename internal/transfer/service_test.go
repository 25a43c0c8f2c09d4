package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgdir/internal/apperr"
	"github.com/wolfeidau/orgdir/internal/audit"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/notify"
	"github.com/wolfeidau/orgdir/internal/notify/notifytest"
	"github.com/wolfeidau/orgdir/internal/store"
	"github.com/wolfeidau/orgdir/internal/store/memory"
	"github.com/wolfeidau/orgdir/internal/store/storetest"
)

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(Deps{}, Config{})
	require.Error(t, err)
}

func TestNewServiceRejectsTinyTTL(t *testing.T) {
	_, err := NewService(Deps{Store: memory.NewStore()}, Config{TTL: time.Second})
	require.Error(t, err)
}

func TestInitiate(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		tr := h.initiate(t)

		require.Equal(t, models.TransferPending, tr.Status)
		require.Equal(t, h.fixture.Owner.UserID, tr.FromUserID)
		require.Equal(t, h.fixture.Member.UserID, tr.ToUserID)
		require.Equal(t, storetest.Epoch, tr.InitiatedAt)
		require.Equal(t, storetest.Epoch.Add(models.DefaultTransferTTL), tr.ExpiresAt)
		require.Nil(t, tr.CompletedAt)

		stored := h.transfer(t, tr)
		require.Equal(t, tr.ExpiresAt, stored.ExpiresAt)

		entries, err := h.store.ListAuditEntries(context.Background(), tr.TransferID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, models.AuditInitiated, entries[0].Action)
		require.Equal(t, h.fixture.Owner.UserID, entries[0].ActorID)
		require.Equal(t, models.ActorRoleInitiator, entries[0].ActorRole)
		require.Equal(t, "Succession planning 101", entries[0].Metadata[audit.MetaReason])
		require.Equal(t, "192.0.2.10", entries[0].IPAddress)
		require.Equal(t, "orgdir-test", entries[0].UserAgent)

		orgEvents := h.orgLog.Events(h.fixture.Org.OrgID)
		require.Len(t, orgEvents, 1)
		require.Equal(t, models.AuditInitiated, orgEvents[0].Action)

		h.dispatcher.Wait()

		sent := h.mailer.Sent()
		require.Len(t, sent, 1)
		require.Equal(t, "initiated", sent[0].Kind)
		require.Equal(t, h.fixture.Member.Email, sent[0].To)
		require.Equal(t, "Acme", sent[0].Notice.OrgName)

		events := h.events.Events()
		require.Len(t, events, 1)
		require.Equal(t, h.fixture.Member.UserID, events[0].TargetUserID)
		require.Equal(t, notify.EventTransferInitiated, events[0].Event.Type)
	})
}

func TestInitiateTrimsReason(t *testing.T) {
	h := newHarness(t, memory.NewStore())

	tr, err := h.svc.Initiate(context.Background(), h.fixture.Org.OrgID, h.fixture.Owner.UserID, h.fixture.Member.UserID,
		"   handing over   ", Client{})
	require.NoError(t, err)
	require.Equal(t, "handing over", tr.Reason)
}

func TestInitiateRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.NewStore())
	f := h.fixture

	superuser := h.user(t, "root", models.SystemRoleSuperuser)
	orgAdmin := h.member(t, "admin", models.RoleAdmin)

	tests := []struct {
		name   string
		orgID  uuid.UUID
		from   uuid.UUID
		to     uuid.UUID
		reason string
		kind   apperr.Kind
	}{
		{name: "short reason", orgID: f.Org.OrgID, from: f.Owner.UserID, to: f.Member.UserID, reason: "too short", kind: apperr.KindValidation},
		{name: "blank reason", orgID: f.Org.OrgID, from: f.Owner.UserID, to: f.Member.UserID, reason: "          ", kind: apperr.KindValidation},
		{name: "superuser initiator", orgID: f.Org.OrgID, from: superuser.UserID, to: f.Member.UserID, reason: "Succession planning 101", kind: apperr.KindForbidden},
		{name: "admin member initiator", orgID: f.Org.OrgID, from: orgAdmin.UserID, to: f.Member.UserID, reason: "Succession planning 101", kind: apperr.KindForbidden},
		{name: "outsider initiator", orgID: f.Org.OrgID, from: f.Outsider.UserID, to: f.Member.UserID, reason: "Succession planning 101", kind: apperr.KindForbidden},
		{name: "self transfer", orgID: f.Org.OrgID, from: f.Owner.UserID, to: f.Owner.UserID, reason: "Succession planning 101", kind: apperr.KindValidation},
		{name: "unknown recipient", orgID: f.Org.OrgID, from: f.Owner.UserID, to: uuid.Must(uuid.NewV7()), reason: "Succession planning 101", kind: apperr.KindNotFound},
		{name: "unknown organization", orgID: uuid.Must(uuid.NewV7()), from: f.Owner.UserID, to: f.Member.UserID, reason: "Succession planning 101", kind: apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Initiate(ctx, tt.orgID, tt.from, tt.to, tt.reason, Client{})
			requireKind(t, err, tt.kind)
		})
	}

	transfers, err := h.store.ListTransfers(ctx, f.Org.OrgID, store.TransferFilter{})
	require.NoError(t, err)
	require.Empty(t, transfers)
}

func TestSuperuserResolvesAsOwnerButCannotInitiate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.NewStore())
	superuser := h.user(t, "root", models.SystemRoleSuperuser)

	v := NewValidator(h.store)
	err := v.ValidateEligibility(ctx, h.fixture.Org.OrgID, superuser.UserID, h.fixture.Member.UserID)
	requireKind(t, err, apperr.KindForbidden)

	_, err = h.svc.Initiate(ctx, h.fixture.Org.OrgID, superuser.UserID, h.fixture.Member.UserID, "Succession planning 101", Client{})
	requireKind(t, err, apperr.KindForbidden)
}

func TestSuperuserOwnerCannotInitiate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.NewStore())
	owner := h.user(t, "root-owner", models.SystemRoleSuperuser)

	org := &models.Organization{
		OrgID:       uuid.Must(uuid.NewV7()),
		Name:        "Root Co",
		OwnerUserID: owner.UserID,
		CreatedAt:   storetest.Epoch,
		UpdatedAt:   storetest.Epoch,
	}
	require.NoError(t, h.store.CreateOrganization(ctx, org))

	_, err := h.svc.Initiate(ctx, org.OrgID, owner.UserID, h.fixture.Member.UserID, "Succession planning 101", Client{})
	requireKind(t, err, apperr.KindForbidden)
	require.Equal(t, "Only the organization owner can transfer ownership", apperr.MessageOf(err))
}

func TestAtMostOnePendingTransfer(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.initiate(t)

		other := h.user(t, "other", models.SystemRoleUser)
		_, err := h.svc.Initiate(ctx, h.fixture.Org.OrgID, h.fixture.Owner.UserID, other.UserID, "Second attempt at this", Client{})
		requireKind(t, err, apperr.KindConflict)

		pending, err := h.store.ListTransfers(ctx, h.fixture.Org.OrgID, store.TransferFilter{Status: models.TransferPending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
	})
}

func TestConcurrentInitiateKeepsOnePending(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()

		const n = 8
		recipients := make([]*models.User, n)
		for i := range recipients {
			recipients[i] = h.user(t, "recipient", models.SystemRoleUser)
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			conflicts int
		)
		for _, r := range recipients {
			wg.Add(1)
			go func(to uuid.UUID) {
				defer wg.Done()
				_, err := h.svc.Initiate(ctx, h.fixture.Org.OrgID, h.fixture.Owner.UserID, to, "Concurrent succession plan", Client{})

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case apperr.Is(err, apperr.KindConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(r.UserID)
		}
		wg.Wait()

		require.Equal(t, 1, succeeded)
		require.Equal(t, n-1, conflicts)

		pending, err := h.store.ListTransfers(ctx, h.fixture.Org.OrgID, store.TransferFilter{Status: models.TransferPending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
	})
}

// Scenario A: the recipient accepts and becomes owner; the previous owner is
// demoted to admin.
func TestAcceptSwapsOwnership(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		f := h.fixture
		tr := h.initiate(t)

		h.clock.Set(storetest.Epoch.Add(24 * time.Hour))

		accepted, err := h.svc.Accept(ctx, tr.TransferID, f.Member.UserID, Client{IPAddress: "192.0.2.20"})
		require.NoError(t, err)
		require.Equal(t, models.TransferAccepted, accepted.Status)
		require.NotNil(t, accepted.CompletedAt)
		require.Equal(t, storetest.Epoch.Add(24*time.Hour), *accepted.CompletedAt)

		org := h.org(t)
		require.Equal(t, f.Member.UserID, org.OwnerUserID)

		prev, err := h.store.GetMembership(ctx, f.Org.OrgID, f.Owner.UserID)
		require.NoError(t, err)
		require.Equal(t, models.RoleAdmin, prev.Role)

		_, err = h.store.GetMembership(ctx, f.Org.OrgID, f.Member.UserID)
		require.ErrorIs(t, err, store.ErrMembershipNotFound)

		memberships, err := h.store.ListMemberships(ctx, f.Org.OrgID)
		require.NoError(t, err)
		require.Len(t, memberships, 1)

		require.Equal(t, models.TransferAccepted, h.transfer(t, tr).Status)
		require.Equal(t, []models.AuditAction{models.AuditInitiated, models.AuditAccepted}, h.auditActions(t, tr))

		orgEvents := h.orgLog.Events(f.Org.OrgID)
		require.Len(t, orgEvents, 2)
		require.Equal(t, models.AuditAccepted, orgEvents[1].Action)
		require.Equal(t, "192.0.2.20", orgEvents[1].IPAddress)

		h.dispatcher.Wait()

		require.Len(t, h.mailer.Sent(), 2)
		sent := h.sentOfKind("accepted")
		require.Len(t, sent, 1)
		require.Equal(t, f.Owner.Email, sent[0].To)

		require.Len(t, h.events.Events(), 2)
		events := h.eventsOfType(notify.EventTransferAccepted)
		require.Len(t, events, 1)
		require.Equal(t, f.Owner.UserID, events[0].TargetUserID)
		require.Equal(t, f.Member.UserID, events[0].Actor)
	})
}

func TestAcceptByRecipientWithoutMembership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.NewStore())
	f := h.fixture

	tr, err := h.svc.Initiate(ctx, f.Org.OrgID, f.Owner.UserID, f.Outsider.UserID, "Outsider takes over", Client{})
	require.NoError(t, err)

	_, err = h.svc.Accept(ctx, tr.TransferID, f.Outsider.UserID, Client{})
	require.NoError(t, err)

	require.Equal(t, f.Outsider.UserID, h.org(t).OwnerUserID)

	prev, err := h.store.GetMembership(ctx, f.Org.OrgID, f.Owner.UserID)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, prev.Role)

	// The editor keeps their membership.
	member, err := h.store.GetMembership(ctx, f.Org.OrgID, f.Member.UserID)
	require.NoError(t, err)
	require.Equal(t, models.RoleEditor, member.Role)
}

// Scenario B: nobody but the designated recipient can accept.
func TestAcceptOnlyByRecipient(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		tr := h.initiate(t)
		superuser := h.user(t, "root", models.SystemRoleSuperuser)

		for _, userID := range []uuid.UUID{superuser.UserID, h.fixture.Owner.UserID, h.fixture.Outsider.UserID} {
			_, err := h.svc.Accept(ctx, tr.TransferID, userID, Client{})
			requireKind(t, err, apperr.KindForbidden)
			require.Equal(t, "Only the designated recipient can accept this transfer", apperr.MessageOf(err))
		}

		require.Equal(t, models.TransferPending, h.transfer(t, tr).Status)
		require.Equal(t, h.fixture.Owner.UserID, h.org(t).OwnerUserID)
		require.Equal(t, []models.AuditAction{models.AuditInitiated}, h.auditActions(t, tr))
	})
}

func TestAcceptUnknownTransfer(t *testing.T) {
	h := newHarness(t, memory.NewStore())

	_, err := h.svc.Accept(context.Background(), uuid.Must(uuid.NewV7()), h.fixture.Member.UserID, Client{})
	requireKind(t, err, apperr.KindNotFound)
}

// Scenario C: accepting after the deadline expires the transfer instead.
func TestAcceptExpiredTransfer(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		tr := h.initiate(t)

		h.clock.Set(tr.ExpiresAt.Add(time.Millisecond))

		_, err := h.svc.Accept(ctx, tr.TransferID, h.fixture.Member.UserID, Client{})
		requireKind(t, err, apperr.KindConflict)
		require.Equal(t, "This transfer has expired", apperr.MessageOf(err))

		stored := h.transfer(t, tr)
		require.Equal(t, models.TransferExpired, stored.Status)
		require.NotNil(t, stored.CompletedAt)
		require.Equal(t, tr.ExpiresAt, stored.ExpiresAt)
		require.Equal(t, h.fixture.Owner.UserID, h.org(t).OwnerUserID)

		entries, err := h.store.ListAuditEntries(ctx, tr.TransferID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, models.AuditExpired, entries[1].Action)
		require.Equal(t, uuid.Nil, entries[1].ActorID)
		require.Equal(t, models.ActorRoleSystem, entries[1].ActorRole)
		require.Equal(t, h.fixture.Member.UserID.String(), entries[1].Metadata[audit.MetaAttemptedBy])

		// A retry now reports the terminal status.
		_, err = h.svc.Accept(ctx, tr.TransferID, h.fixture.Member.UserID, Client{})
		requireKind(t, err, apperr.KindConflict)
		require.Equal(t, "Transfer is already expired", apperr.MessageOf(err))
	})
}

func TestAcceptAtDeadline(t *testing.T) {
	h := newHarness(t, memory.NewStore())
	tr := h.initiate(t)

	h.clock.Set(tr.ExpiresAt)

	accepted, err := h.svc.Accept(context.Background(), tr.TransferID, h.fixture.Member.UserID, Client{})
	require.NoError(t, err)
	require.Equal(t, models.TransferAccepted, accepted.Status)
}

func TestReject(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		tr := h.initiate(t)

		_, err := h.svc.Reject(ctx, tr.TransferID, h.fixture.Owner.UserID, "", Client{})
		requireKind(t, err, apperr.KindForbidden)

		rejected, err := h.svc.Reject(ctx, tr.TransferID, h.fixture.Member.UserID, "  not ready yet ", Client{})
		require.NoError(t, err)
		require.Equal(t, models.TransferRejected, rejected.Status)
		require.NotNil(t, rejected.CompletedAt)
		require.Equal(t, h.fixture.Owner.UserID, h.org(t).OwnerUserID)

		entries, err := h.store.ListAuditEntries(ctx, tr.TransferID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, models.AuditRejected, entries[1].Action)
		require.Equal(t, "not ready yet", entries[1].Metadata[audit.MetaReason])

		_, err = h.svc.Reject(ctx, tr.TransferID, h.fixture.Member.UserID, "", Client{})
		requireKind(t, err, apperr.KindConflict)
		require.Equal(t, "Transfer is already rejected", apperr.MessageOf(err))

		h.dispatcher.Wait()
		sent := h.sentOfKind("rejected")
		require.Len(t, sent, 1)
		require.Equal(t, h.fixture.Owner.Email, sent[0].To)
	})
}

// Round trip: initiate then cancel leaves ownership unchanged.
func TestCancelRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		tr := h.initiate(t)

		cancelled, err := h.svc.Cancel(ctx, tr.TransferID, h.fixture.Owner.UserID, "Changed my mind", Client{})
		require.NoError(t, err)
		require.Equal(t, models.TransferCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancellationReason)
		require.Equal(t, "Changed my mind", *cancelled.CancellationReason)

		stored := h.transfer(t, tr)
		require.Equal(t, models.TransferCancelled, stored.Status)
		require.Equal(t, "Changed my mind", *stored.CancellationReason)

		require.Equal(t, h.fixture.Owner.UserID, h.org(t).OwnerUserID)
		require.Equal(t, []models.AuditAction{models.AuditInitiated, models.AuditCancelled}, h.auditActions(t, tr))

		h.dispatcher.Wait()
		sent := h.sentOfKind("cancelled")
		require.Len(t, sent, 1)
		require.Equal(t, h.fixture.Member.Email, sent[0].To)

		// A new transfer can be started once the old one is closed.
		h.initiate(t)
	})
}

func TestCancelRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.NewStore())
	tr := h.initiate(t)

	superuser := h.user(t, "root", models.SystemRoleSuperuser)
	orgAdmin := h.member(t, "admin", models.RoleAdmin)

	for _, userID := range []uuid.UUID{superuser.UserID, orgAdmin.UserID, h.fixture.Member.UserID, h.fixture.Outsider.UserID} {
		_, err := h.svc.Cancel(ctx, tr.TransferID, userID, "Not allowed to do this", Client{})
		requireKind(t, err, apperr.KindForbidden)
	}

	_, err := h.svc.Cancel(ctx, tr.TransferID, h.fixture.Owner.UserID, "   ", Client{})
	requireKind(t, err, apperr.KindValidation)

	_, err = h.svc.Cancel(ctx, uuid.Must(uuid.NewV7()), h.fixture.Owner.UserID, "whatever", Client{})
	requireKind(t, err, apperr.KindNotFound)

	require.Equal(t, models.TransferPending, h.transfer(t, tr).Status)

	_, err = h.svc.Accept(ctx, tr.TransferID, h.fixture.Member.UserID, Client{})
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, tr.TransferID, h.fixture.Owner.UserID, "Too late now", Client{})
	requireKind(t, err, apperr.KindConflict)
	require.Equal(t, "Transfer is already accepted", apperr.MessageOf(err))
}

func TestConcurrentTransitionsOnlyOneWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		tr := h.initiate(t)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, 3)
		)

		wg.Add(3)
		go func() {
			defer wg.Done()
			<-start
			_, errs[0] = h.svc.Accept(ctx, tr.TransferID, h.fixture.Member.UserID, Client{})
		}()
		go func() {
			defer wg.Done()
			<-start
			_, errs[1] = h.svc.Cancel(ctx, tr.TransferID, h.fixture.Owner.UserID, "Race to cancel", Client{})
		}()
		go func() {
			defer wg.Done()
			<-start
			_, errs[2] = h.svc.Reject(ctx, tr.TransferID, h.fixture.Member.UserID, "", Client{})
		}()
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			requireKind(t, err, apperr.KindConflict)
		}
		require.Equal(t, 1, succeeded)

		stored := h.transfer(t, tr)
		require.True(t, stored.Status.IsTerminal())
		require.Len(t, h.auditActions(t, tr), 2)

		org := h.org(t)
		if stored.Status == models.TransferAccepted {
			require.Equal(t, h.fixture.Member.UserID, org.OwnerUserID)
		} else {
			require.Equal(t, h.fixture.Owner.UserID, org.OwnerUserID)
		}
	})
}

func TestExpireOldIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		stale := h.initiate(t)

		// A second organization whose transfer is still fresh at sweep time.
		g := storetest.NewFixture(t, h.store)
		h.clock.Set(storetest.Epoch.Add(6 * 24 * time.Hour))
		fresh, err := h.svc.Initiate(ctx, g.Org.OrgID, g.Owner.UserID, g.Member.UserID, "Fresh transfer here", Client{})
		require.NoError(t, err)

		h.clock.Set(stale.ExpiresAt.Add(time.Hour))

		n, err := h.svc.ExpireOld(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		require.Equal(t, models.TransferExpired, h.transfer(t, stale).Status)
		require.Equal(t, models.TransferPending, h.transfer(t, fresh).Status)

		entries, err := h.store.ListAuditEntries(ctx, stale.TransferID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, models.AuditExpired, entries[1].Action)
		require.Equal(t, models.ActorRoleSystem, entries[1].ActorRole)
		require.Equal(t, "true", entries[1].Metadata[audit.MetaSwept])

		n, err = h.svc.ExpireOld(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
		require.Len(t, h.auditActions(t, stale), 2)
		require.Len(t, h.auditActions(t, fresh), 1)

		h.dispatcher.Wait()
		require.Len(t, h.eventsOfType(notify.EventTransferExpired), 2)
	})
}

func TestExpireOldWalksBatches(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := &fakeClock{now: storetest.Epoch}

	svc, err := NewService(Deps{
		Store:  st,
		OrgLog: audit.NewMemoryOrgLog(),
		Mailer: &notifytest.Mailer{},
		Events: &notifytest.Emitter{},
	}, Config{Now: clock.Now, SweepBatchSize: 2})
	require.NoError(t, err)

	const orgs = 5
	for i := 0; i < orgs; i++ {
		f := storetest.NewFixture(t, st)
		_, err := svc.Initiate(ctx, f.Org.OrgID, f.Owner.UserID, f.Member.UserID, "Batch sweep candidate", Client{})
		require.NoError(t, err)
	}

	clock.Set(storetest.Epoch.Add(models.DefaultTransferTTL + time.Minute))

	n, err := svc.ExpireOld(ctx)
	require.NoError(t, err)
	require.Equal(t, orgs, n)

	remaining, err := st.ListExpiredPending(ctx, clock.Now(), 0)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

// txFailingStore fails every transaction while reads still work.
type txFailingStore struct {
	store.Store
	listed int
}

func (s *txFailingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return context.DeadlineExceeded
}

func (s *txFailingStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.OwnershipTransfer, error) {
	s.listed++
	return s.Store.ListExpiredPending(ctx, now, limit)
}

func TestExpireOldStopsOnStuckBatch(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := &fakeClock{now: storetest.Epoch}

	svc, err := NewService(Deps{Store: st, OrgLog: audit.NewMemoryOrgLog()}, Config{Now: clock.Now})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f := storetest.NewFixture(t, st)
		_, err := svc.Initiate(ctx, f.Org.OrgID, f.Owner.UserID, f.Member.UserID, "Stuck sweep candidate", Client{})
		require.NoError(t, err)
	}

	clock.Set(storetest.Epoch.Add(models.DefaultTransferTTL + time.Minute))

	failing := &txFailingStore{Store: st}
	sweeper, err := NewService(Deps{Store: failing, OrgLog: audit.NewMemoryOrgLog()}, Config{Now: clock.Now, SweepBatchSize: 2})
	require.NoError(t, err)

	n, err := sweeper.ExpireOld(ctx)
	requireKind(t, err, apperr.KindInternal)
	require.Zero(t, n)
	require.Equal(t, 1, failing.listed)

	remaining, err := st.ListExpiredPending(ctx, clock.Now(), 0)
	require.NoError(t, err)
	require.Len(t, remaining, 3)
}

func TestConfiguredTTL(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	f := storetest.NewFixture(t, st)
	clock := &fakeClock{now: storetest.Epoch}

	svc, err := NewService(Deps{Store: st, OrgLog: audit.NewMemoryOrgLog()}, Config{Now: clock.Now, TTL: time.Hour})
	require.NoError(t, err)

	tr, err := svc.Initiate(ctx, f.Org.OrgID, f.Owner.UserID, f.Member.UserID, "Quick handover today", Client{})
	require.NoError(t, err)
	require.Equal(t, storetest.Epoch.Add(time.Hour), tr.ExpiresAt)
}

func TestSideEffectFailuresDoNotFailTransitions(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	f := storetest.NewFixture(t, st)
	dispatcher := notify.NewDispatcher(time.Second)

	svc, err := NewService(Deps{
		Store:      st,
		OrgLog:     failingOrgLog{},
		Mailer:     &notifytest.Mailer{Err: context.DeadlineExceeded},
		Events:     &notifytest.Emitter{Err: context.DeadlineExceeded},
		Dispatcher: dispatcher,
	}, Config{Now: func() time.Time { return storetest.Epoch }})
	require.NoError(t, err)

	tr, err := svc.Initiate(ctx, f.Org.OrgID, f.Owner.UserID, f.Member.UserID, "Succession planning 101", Client{})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, tr.TransferID, f.Member.UserID, Client{})
	require.NoError(t, err)

	dispatcher.Wait()

	org, err := st.GetOrganization(ctx, f.Org.OrgID)
	require.NoError(t, err)
	require.Equal(t, f.Member.UserID, org.OwnerUserID)
}

type failingOrgLog struct{}

func (failingOrgLog) LogOrgEvent(ctx context.Context, ev audit.OrgEvent) error {
	return context.DeadlineExceeded
}

func TestGetAndAuditLogVisibility(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.NewStore())
	tr := h.initiate(t)

	superuser := h.user(t, "root", models.SystemRoleSuperuser)
	orgAdmin := h.member(t, "admin", models.RoleAdmin)
	viewer := h.member(t, "viewer", models.RoleViewer)

	allowed := []uuid.UUID{h.fixture.Owner.UserID, h.fixture.Member.UserID, orgAdmin.UserID, superuser.UserID}
	for _, userID := range allowed {
		got, err := h.svc.Get(ctx, tr.TransferID, userID)
		require.NoError(t, err)
		require.Equal(t, tr.TransferID, got.TransferID)

		entries, err := h.svc.AuditLog(ctx, tr.TransferID, userID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	}

	for _, userID := range []uuid.UUID{viewer.UserID, h.fixture.Outsider.UserID} {
		_, err := h.svc.Get(ctx, tr.TransferID, userID)
		requireKind(t, err, apperr.KindForbidden)

		_, err = h.svc.AuditLog(ctx, tr.TransferID, userID)
		requireKind(t, err, apperr.KindForbidden)
	}

	_, err := h.svc.Get(ctx, uuid.Must(uuid.NewV7()), h.fixture.Owner.UserID)
	requireKind(t, err, apperr.KindNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.NewStore())
	f := h.fixture

	first := h.initiate(t)
	_, err := h.svc.Cancel(ctx, first.TransferID, f.Owner.UserID, "Starting over", Client{})
	require.NoError(t, err)

	h.clock.Set(storetest.Epoch.Add(time.Hour))
	second := h.initiate(t)

	all, err := h.svc.List(ctx, f.Org.OrgID, f.Owner.UserID, store.TransferFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.TransferID, all[0].TransferID)

	cancelled, err := h.svc.List(ctx, f.Org.OrgID, f.Owner.UserID, store.TransferFilter{Status: models.TransferCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	require.Equal(t, first.TransferID, cancelled[0].TransferID)

	_, err = h.svc.List(ctx, f.Org.OrgID, f.Member.UserID, store.TransferFilter{})
	requireKind(t, err, apperr.KindForbidden)

	_, err = h.svc.List(ctx, f.Org.OrgID, f.Owner.UserID, store.TransferFilter{Limit: -1})
	requireKind(t, err, apperr.KindValidation)
}

func TestPendingForUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.NewStore())
	tr := h.initiate(t)

	outgoing, err := h.svc.PendingForUser(ctx, h.fixture.Owner.UserID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	require.Equal(t, DirectionOutgoing, outgoing[0].Direction)
	require.Equal(t, tr.TransferID, outgoing[0].Transfer.TransferID)

	incoming, err := h.svc.PendingForUser(ctx, h.fixture.Member.UserID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.Equal(t, DirectionIncoming, incoming[0].Direction)

	none, err := h.svc.PendingForUser(ctx, h.fixture.Outsider.UserID)
	require.NoError(t, err)
	require.Empty(t, none)
}
