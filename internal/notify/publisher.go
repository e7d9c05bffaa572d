// Package notify publishes grievance lifecycle events to NATS so SMS/email
// notifiers can react to them.
//
// Subject convention: grievances.<event_type>
//
// Publishing is non-fatal: failures are logged and never returned, so a
// broker outage never interrupts a citizen's request.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

// Event types.
const (
	EventCreated               = "created"
	EventStatusChanged         = "status_changed"
	EventAssigned              = "assigned"
	EventPriorityEscalated     = "priority_escalated"
	EventCancellationRequested = "cancellation_requested"
	EventCancellationDecided   = "cancellation_decided"
	EventDeleted               = "deleted"
)

// Event is the JSON schema published to NATS.
type Event struct {
	Type        string          `json:"type"`
	GrievanceID uuid.UUID       `json:"grievance_id"`
	ActorID     uuid.UUID       `json:"actor_id"`
	FilerID     uuid.UUID       `json:"filer_id"`
	Status      models.Status   `json:"status,omitempty"`
	Priority    models.Priority `json:"priority,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     map[string]any  `json:"payload,omitempty"`
}

// EventFor fills the grievance fields of an event.
func EventFor(eventType string, g *models.Grievance, actor uuid.UUID) Event {
	return Event{
		Type:        eventType,
		GrievanceID: g.ID,
		ActorID:     actor,
		FilerID:     g.FilerID,
		Status:      g.Status,
		Priority:    g.Priority,
	}
}

// Subject returns the NATS subject for an event type.
func Subject(eventType string) string { return "grievances." + eventType }

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends events. The zero value and a nil *Publisher are no-ops.
type Publisher struct {
	conn conn
	nc   *nats.Conn
	log  zerolog.Logger
}

// Connect dials NATS. An empty url yields a no-op publisher.
func Connect(url string, log zerolog.Logger) (*Publisher, error) {
	if url == "" {
		log.Warn().Msg("NATS_URL not set; grievance events are disabled")
		return &Publisher{log: log}, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("civic-grievance-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: nc, nc: nc, log: log}, nil
}

// Publish sends ev on grievances.<type>.
func (p *Publisher) Publish(ev Event) {
	if p == nil || p.conn == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", ev.Type).Msg("notify: failed to marshal event")
		return
	}

	subject := Subject(ev.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("grievance_id", ev.GrievanceID.String()).
			Msg("notify: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("grievance_id", ev.GrievanceID.String()).
		Msg("notify: event published")
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}
