package audit

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgdir/internal/models"
)

// OrgEvent is a human-readable compliance entry for an organization.
type OrgEvent struct {
	OrgID      uuid.UUID
	ActorID    uuid.UUID
	Action     models.AuditAction
	TransferID uuid.UUID
	Summary    string
	Details    map[string]string
	IPAddress  string
	UserAgent  string
	At         time.Time
}

// OrgLog is the organization-wide audit log.
type OrgLog interface {
	LogOrgEvent(ctx context.Context, ev OrgEvent) error
}

// LogOrgLog writes organization events as structured log lines.
type LogOrgLog struct {
	logger zerolog.Logger
}

// NewLogOrgLog returns an OrgLog writing to logger under the "org_audit" component.
func NewLogOrgLog(logger zerolog.Logger) *LogOrgLog {
	return &LogOrgLog{logger: logger.With().Str("component", "org_audit").Logger()}
}

func (l *LogOrgLog) LogOrgEvent(ctx context.Context, ev OrgEvent) error {
	e := l.logger.Info().
		Str("org_id", ev.OrgID.String()).
		Str("actor_id", ev.ActorID.String()).
		Str("action", "ownership_transfer."+string(ev.Action)).
		Str("transfer_id", ev.TransferID.String()).
		Time("at", ev.At)

	if ev.IPAddress != "" {
		e = e.Str("ip_address", ev.IPAddress)
	}
	if ev.UserAgent != "" {
		e = e.Str("user_agent", ev.UserAgent)
	}
	if len(ev.Details) > 0 {
		d := zerolog.Dict()
		for k, v := range ev.Details {
			d = d.Str(k, v)
		}
		e = e.Dict("details", d)
	}

	e.Msg(ev.Summary)
	return nil
}

// MemoryOrgLog keeps organization events in memory.
type MemoryOrgLog struct {
	mu     sync.Mutex
	events []OrgEvent
}

func NewMemoryOrgLog() *MemoryOrgLog {
	return &MemoryOrgLog{}
}

func (m *MemoryOrgLog) LogOrgEvent(ctx context.Context, ev OrgEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.Details = maps.Clone(ev.Details)
	m.events = append(m.events, ev)
	return nil
}

// Events returns the events logged for orgID, oldest first.
func (m *MemoryOrgLog) Events(orgID uuid.UUID) []OrgEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []OrgEvent
	for _, ev := range m.events {
		if ev.OrgID == orgID {
			result = append(result, ev)
		}
	}
	return result
}
