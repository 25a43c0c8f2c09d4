package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/telemetry"
)

// Event types published for transfer transitions.
const (
	EventTransferInitiated = "transfer.initiated"
	EventTransferAccepted  = "transfer.accepted"
	EventTransferRejected  = "transfer.rejected"
	EventTransferCancelled = "transfer.cancelled"
	EventTransferExpired   = "transfer.expired"
)

// EventType returns the event type published for a transfer status.
func EventType(status models.TransferStatus) string {
	switch status {
	case models.TransferPending:
		return EventTransferInitiated
	case models.TransferAccepted:
		return EventTransferAccepted
	case models.TransferRejected:
		return EventTransferRejected
	case models.TransferCancelled:
		return EventTransferCancelled
	case models.TransferExpired:
		return EventTransferExpired
	default:
		panic("unhandled transfer status " + status.String())
	}
}

// Event is a real-time notification about a transfer.
type Event struct {
	Type         string                `json:"type"`
	TransferID   uuid.UUID             `json:"transfer_id"`
	OrgID        uuid.UUID             `json:"org_id"`
	TargetUserID uuid.UUID             `json:"target_user_id"`
	ActorID      uuid.UUID             `json:"actor_id"`
	Status       models.TransferStatus `json:"status"`
	At           time.Time             `json:"at"`
}

// EventEmitter pushes an event to one user.
type EventEmitter interface {
	EmitTransferEvent(ctx context.Context, orgID, targetUserID uuid.UUID, payload Event, actor uuid.UUID) error
}

// DefaultSubscriberBuffer is the channel capacity given to each subscriber.
const DefaultSubscriberBuffer = 64

var _ EventEmitter = (*Hub)(nil)

// Hub fans events out to in-process subscribers keyed by user. A subscriber
// whose buffer is full misses the event; publishing never blocks.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[*subscription]struct{}
	buffer      int
	metrics     *telemetry.Metrics
}

type subscription struct {
	ch chan Event
}

// NewHub creates a hub. buffer <= 0 uses DefaultSubscriberBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[uuid.UUID]map[*subscription]struct{}),
		buffer:      buffer,
		metrics:     telemetry.GetMetrics(),
	}
}

// Subscribe registers a subscriber for userID. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	subs, ok := h.subscribers[userID]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.subscribers[userID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	h.metrics.ActiveSubscribers.Add(context.Background(), 1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[userID], sub)
			if len(h.subscribers[userID]) == 0 {
				delete(h.subscribers, userID)
			}
			close(sub.ch)
			h.mu.Unlock()

			h.metrics.ActiveSubscribers.Add(context.Background(), -1)
		})
	}

	return sub.ch, cancel
}

// EmitTransferEvent delivers payload to every subscriber of targetUserID.
func (h *Hub) EmitTransferEvent(ctx context.Context, orgID, targetUserID uuid.UUID, payload Event, actor uuid.UUID) error {
	payload.OrgID = orgID
	payload.TargetUserID = targetUserID
	payload.ActorID = actor

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[targetUserID] {
		select {
		case sub.ch <- payload:
			h.metrics.EventsPublished.Add(ctx, 1)
		default:
			h.metrics.EventsDroppedTotal.Add(ctx, 1)
			log.Warn().
				Str("user_id", targetUserID.String()).
				Str("event", payload.Type).
				Msg("Dropping event for slow subscriber")
		}
	}

	return nil
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}
