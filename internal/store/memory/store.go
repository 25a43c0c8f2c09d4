package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
)

var _ store.Store = (*Store)(nil)

type membershipKey struct {
	orgID  uuid.UUID
	userID uuid.UUID
}

// state is everything the store holds. Transactions work on a copy and swap
// it in on commit.
type state struct {
	organizations map[uuid.UUID]*models.Organization         // org_id -> Organization
	users         map[uuid.UUID]*models.User                 // user_id -> User
	memberships   map[membershipKey]*models.Membership       // (org_id, user_id) -> Membership
	transfers     map[uuid.UUID]*models.OwnershipTransfer    // transfer_id -> Transfer
	pending       map[uuid.UUID]uuid.UUID                    // org_id -> pending transfer_id
	audit         map[uuid.UUID][]*models.TransferAuditEntry // transfer_id -> entries
}

func newState() *state {
	return &state{
		organizations: make(map[uuid.UUID]*models.Organization),
		users:         make(map[uuid.UUID]*models.User),
		memberships:   make(map[membershipKey]*models.Membership),
		transfers:     make(map[uuid.UUID]*models.OwnershipTransfer),
		pending:       make(map[uuid.UUID]uuid.UUID),
		audit:         make(map[uuid.UUID][]*models.TransferAuditEntry),
	}
}

// clone copies the maps. Values are replaced rather than mutated in place, so
// sharing the pointers between the copies is safe.
func (s *state) clone() *state {
	c := &state{
		organizations: maps.Clone(s.organizations),
		users:         maps.Clone(s.users),
		memberships:   maps.Clone(s.memberships),
		transfers:     maps.Clone(s.transfers),
		pending:       maps.Clone(s.pending),
		audit:         make(map[uuid.UUID][]*models.TransferAuditEntry, len(s.audit)),
	}
	for k, v := range s.audit {
		c.audit[k] = v[:len(v):len(v)]
	}
	return c
}

// Store implements store.Store using in-memory storage.
// This implementation is for testing and development only - data is lost on restart.
// WithTx holds the write lock for the whole callback, which makes every
// transaction serializable.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithTx runs fn against a private copy of the state and publishes the copy
// only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&tx{state: work}); err != nil {
		return err
	}

	s.state = work
	return nil
}

// read runs fn under the read lock against the committed state.
func (s *Store) read(fn func(tx *tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{state: s.state})
}

func (s *Store) GetOrganization(ctx context.Context, orgID uuid.UUID) (org *models.Organization, err error) {
	err = s.read(func(t *tx) error {
		org, err = t.GetOrganization(ctx, orgID)
		return err
	})
	return org, err
}

func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (user *models.User, err error) {
	err = s.read(func(t *tx) error {
		user, err = t.GetUser(ctx, userID)
		return err
	})
	return user, err
}

func (s *Store) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (m *models.Membership, err error) {
	err = s.read(func(t *tx) error {
		m, err = t.GetMembership(ctx, orgID, userID)
		return err
	})
	return m, err
}

func (s *Store) GetTransfer(ctx context.Context, transferID uuid.UUID) (tr *models.OwnershipTransfer, err error) {
	err = s.read(func(t *tx) error {
		tr, err = t.GetTransfer(ctx, transferID)
		return err
	})
	return tr, err
}

func (s *Store) GetPendingTransfer(ctx context.Context, orgID uuid.UUID) (tr *models.OwnershipTransfer, err error) {
	err = s.read(func(t *tx) error {
		tr, err = t.GetPendingTransfer(ctx, orgID)
		return err
	})
	return tr, err
}

// CreateUser creates a new user in memory.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.users[user.UserID]; exists {
		return store.ErrUserAlreadyExists
	}
	for _, u := range s.state.users {
		if user.Email != "" && u.Email == user.Email {
			return store.ErrUserAlreadyExists
		}
	}

	// Clone to avoid external modifications
	clone := *user
	s.state.users[user.UserID] = &clone

	return nil
}

// CreateOrganization creates a new organization in memory.
func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.state.users[org.OwnerUserID]; !exists {
		return store.ErrUserNotFound
	}

	clone := *org
	s.state.organizations[org.OrgID] = &clone

	return nil
}

// ListOrganizationsByOwner returns all organizations owned by a specific user.
func (s *Store) ListOrganizationsByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Organization
	for _, org := range s.state.organizations {
		if org.OwnerUserID == ownerUserID {
			clone := *org
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// PutMembership inserts or updates a membership in its own transaction.
func (s *Store) PutMembership(ctx context.Context, m *models.Membership) error {
	return s.WithTx(ctx, func(t store.Tx) error {
		return t.PutMembership(ctx, m)
	})
}

// ListMemberships returns the memberships of an organization ordered by user ID.
func (s *Store) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Membership
	for key, m := range s.state.memberships {
		if key.orgID == orgID {
			clone := *m
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID.String() < result[j].UserID.String()
	})

	return result, nil
}

// ListTransfers returns an organization's transfers, newest first.
func (s *Store) ListTransfers(ctx context.Context, orgID uuid.UUID, filter store.TransferFilter) ([]*models.OwnershipTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.OwnershipTransfer
	for _, t := range s.state.transfers {
		if t.OrgID != orgID {
			continue
		}
		if filter.Status != 0 && t.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneTransfer(t))
	}

	sortNewestFirst(matched)

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// ListPendingTransfersForUser returns pending transfers the user initiated or received.
func (s *Store) ListPendingTransfersForUser(ctx context.Context, userID uuid.UUID) ([]*models.OwnershipTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.OwnershipTransfer
	for _, transferID := range s.state.pending {
		t := s.state.transfers[transferID]
		if t.Involves(userID) {
			result = append(result, cloneTransfer(t))
		}
	}

	sortNewestFirst(result)

	return result, nil
}

// ListExpiredPending returns pending transfers whose ExpiresAt is before now, oldest expiry first.
func (s *Store) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.OwnershipTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.OwnershipTransfer
	for _, transferID := range s.state.pending {
		t := s.state.transfers[transferID]
		if t.ExpiresAt.Before(now) {
			result = append(result, cloneTransfer(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// ListAuditEntries returns a transfer's audit entries, oldest first.
func (s *Store) ListAuditEntries(ctx context.Context, transferID uuid.UUID) ([]*models.TransferAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.state.audit[transferID]
	result := make([]*models.TransferAuditEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, cloneAuditEntry(e))
	}

	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func sortNewestFirst(transfers []*models.OwnershipTransfer) {
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].InitiatedAt.Equal(transfers[j].InitiatedAt) {
			return transfers[i].TransferID.String() > transfers[j].TransferID.String()
		}
		return transfers[i].InitiatedAt.After(transfers[j].InitiatedAt)
	})
}

func cloneTransfer(t *models.OwnershipTransfer) *models.OwnershipTransfer {
	clone := *t
	if t.CancellationReason != nil {
		reason := *t.CancellationReason
		clone.CancellationReason = &reason
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

func cloneAuditEntry(e *models.TransferAuditEntry) *models.TransferAuditEntry {
	clone := *e
	clone.Metadata = maps.Clone(e.Metadata)
	return &clone
}
