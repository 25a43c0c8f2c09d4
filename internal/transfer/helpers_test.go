package transfer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgdir/internal/audit"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/notify"
	"github.com/wolfeidau/orgdir/internal/notify/notifytest"
	"github.com/wolfeidau/orgdir/internal/store"
	"github.com/wolfeidau/orgdir/internal/store/memory"
	"github.com/wolfeidau/orgdir/internal/store/sqlite"
	"github.com/wolfeidau/orgdir/internal/store/storetest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	svc        *Service
	store      store.Store
	fixture    *storetest.Fixture
	clock      *fakeClock
	mailer     *notifytest.Mailer
	events     *notifytest.Emitter
	orgLog     *audit.MemoryOrgLog
	dispatcher *notify.Dispatcher
}

type storeFactory struct {
	name string
	open func(t *testing.T) store.Store
}

var storeFactories = []storeFactory{
	{name: "memory", open: func(t *testing.T) store.Store { return memory.NewStore() }},
	{name: "sqlite", open: func(t *testing.T) store.Store {
		st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "orgdir.db"))
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, st.Close()) })
		return st
	}},
}

// forEachStore runs fn once per store backend.
func forEachStore(t *testing.T, fn func(t *testing.T, h *harness)) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			fn(t, newHarness(t, f.open(t)))
		})
	}
}

func newHarness(t *testing.T, st store.Store) *harness {
	t.Helper()

	h := &harness{
		store:      st,
		fixture:    storetest.NewFixture(t, st),
		clock:      &fakeClock{now: storetest.Epoch},
		mailer:     &notifytest.Mailer{},
		events:     &notifytest.Emitter{},
		orgLog:     audit.NewMemoryOrgLog(),
		dispatcher: notify.NewDispatcher(time.Second),
	}

	svc, err := NewService(Deps{
		Store:      st,
		OrgLog:     h.orgLog,
		Mailer:     h.mailer,
		Events:     h.events,
		Dispatcher: h.dispatcher,
	}, Config{Now: h.clock.Now})
	require.NoError(t, err)
	h.svc = svc

	return h
}

// initiate starts the fixture's default transfer from the owner to the member.
func (h *harness) initiate(t *testing.T) *models.OwnershipTransfer {
	t.Helper()

	tr, err := h.svc.Initiate(context.Background(), h.fixture.Org.OrgID, h.fixture.Owner.UserID, h.fixture.Member.UserID,
		"Succession planning 101", Client{IPAddress: "192.0.2.10", UserAgent: "orgdir-test"})
	require.NoError(t, err)

	// settle the initiation side effects so later assertions see them in order
	h.dispatcher.Wait()
	return tr
}

// sentOfKind returns the notifications of the given kind.
func (h *harness) sentOfKind(kind string) []notifytest.Sent {
	var out []notifytest.Sent
	for _, s := range h.mailer.Sent() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// eventsOfType returns the emitted events of the given type.
func (h *harness) eventsOfType(typ string) []notifytest.Emitted {
	var out []notifytest.Emitted
	for _, e := range h.events.Events() {
		if e.Event.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) org(t *testing.T) *models.Organization {
	t.Helper()
	org, err := h.store.GetOrganization(context.Background(), h.fixture.Org.OrgID)
	require.NoError(t, err)
	return org
}

func (h *harness) transfer(t *testing.T, tr *models.OwnershipTransfer) *models.OwnershipTransfer {
	t.Helper()
	got, err := h.store.GetTransfer(context.Background(), tr.TransferID)
	require.NoError(t, err)
	return got
}

func (h *harness) auditActions(t *testing.T, tr *models.OwnershipTransfer) []models.AuditAction {
	t.Helper()
	entries, err := h.store.ListAuditEntries(context.Background(), tr.TransferID)
	require.NoError(t, err)

	actions := make([]models.AuditAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func (h *harness) user(t *testing.T, name string, role models.SystemRole) *models.User {
	t.Helper()
	return storetest.NewUser(t, h.store, name+"-"+uuid.NewString()[:8], role)
}

func (h *harness) member(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u := h.user(t, name, models.SystemRoleUser)
	require.NoError(t, h.store.PutMembership(context.Background(), &models.Membership{
		OrgID:     h.fixture.Org.OrgID,
		UserID:    u.UserID,
		Role:      role,
		CreatedAt: storetest.Epoch,
		UpdatedAt: storetest.Epoch,
	}))
	return u
}
