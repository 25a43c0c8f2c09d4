// Package notifytest provides recording collaborators for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/notify"
)

// Sent is one recorded mailer call.
type Sent struct {
	Kind   string // initiated, accepted, rejected or cancelled
	To     string
	Notice notify.Notice
}

// Mailer records notices. If Err is set every call records and then fails.
type Mailer struct {
	Err error

	mu   sync.Mutex
	sent []Sent
}

func (m *Mailer) NotifyInitiated(ctx context.Context, to string, n notify.Notice) error {
	return m.record("initiated", to, n)
}

func (m *Mailer) NotifyAccepted(ctx context.Context, to string, n notify.Notice) error {
	return m.record("accepted", to, n)
}

func (m *Mailer) NotifyRejected(ctx context.Context, to string, n notify.Notice) error {
	return m.record("rejected", to, n)
}

func (m *Mailer) NotifyCancelled(ctx context.Context, to string, n notify.Notice) error {
	return m.record("cancelled", to, n)
}

func (m *Mailer) record(kind, to string, n notify.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Sent{Kind: kind, To: to, Notice: n})
	return m.Err
}

// Sent returns the recorded calls in order.
func (m *Mailer) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Emitted is one recorded event.
type Emitted struct {
	OrgID        uuid.UUID
	TargetUserID uuid.UUID
	Actor        uuid.UUID
	Event        notify.Event
}

// Emitter records events. If Err is set every call records and then fails.
type Emitter struct {
	Err error

	mu     sync.Mutex
	events []Emitted
}

func (e *Emitter) EmitTransferEvent(ctx context.Context, orgID, targetUserID uuid.UUID, payload notify.Event, actor uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, Emitted{OrgID: orgID, TargetUserID: targetUserID, Actor: actor, Event: payload})
	return e.Err
}

// Events returns the recorded events in order.
func (e *Emitter) Events() []Emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Emitted(nil), e.events...)
}
