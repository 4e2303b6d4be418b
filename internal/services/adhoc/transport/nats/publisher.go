package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/coordinator"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
)

// publishConn is the slice of the NATS connection the publisher needs.
type publishConn interface {
	Publish(subject string, data []byte) error
}

// Publisher emits session lifecycle events as JSON messages. It implements
// the coordinator's notifier contract; the coordinator treats publish
// failures as log-and-continue.
type Publisher struct {
	conn publishConn
}

// NewPublisher builds a publisher on the connection.
func NewPublisher(conn publishConn) (*Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	return &Publisher{conn: conn}, nil
}

type sessionEventPayload struct {
	SessionID   string    `json:"session_id"`
	BindingID   string    `json:"binding_id"`
	GameID      *string   `json:"game_id,omitempty"`
	GameName    string    `json:"game_name,omitempty"`
	Status      string    `json:"status"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	MemberCount int       `json:"member_count"`
	Target      string    `json:"target,omitempty"`
}

type rosterEventPayload struct {
	SessionID   string `json:"session_id"`
	BindingID   string `json:"binding_id"`
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name,omitempty"`
	Joined      bool   `json:"joined"`
	MemberCount int    `json:"member_count"`
	Target      string `json:"target,omitempty"`
}

type participantPayload struct {
	MemberID        string `json:"member_id"`
	DisplayName     string `json:"display_name,omitempty"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type completedEventPayload struct {
	SessionID    string               `json:"session_id"`
	BindingID    string               `json:"binding_id"`
	GameID       *string              `json:"game_id,omitempty"`
	GameName     string               `json:"game_name,omitempty"`
	StartsAt     time.Time            `json:"starts_at"`
	EndedAt      time.Time            `json:"ended_at"`
	Participants []participantPayload `json:"participants,omitempty"`
	Target       string               `json:"target,omitempty"`
}

func (p *Publisher) SessionCreated(_ context.Context, event domain.SessionEvent) error {
	return p.publishSessionEvent(SubjectSessionCreated, event)
}

func (p *Publisher) SessionStatusChanged(_ context.Context, event domain.SessionEvent) error {
	return p.publishSessionEvent(SubjectSessionStatusChanged, event)
}

func (p *Publisher) SessionExtended(_ context.Context, event domain.SessionEvent) error {
	return p.publishSessionEvent(SubjectSessionExtended, event)
}

func (p *Publisher) publishSessionEvent(subject string, event domain.SessionEvent) error {
	return p.publish(subject, sessionEventPayload{
		SessionID:   event.SessionID,
		BindingID:   event.BindingID,
		GameID:      event.GameID,
		GameName:    event.GameName,
		Status:      string(event.Status),
		StartsAt:    event.StartsAt,
		EndsAt:      event.EndsAt,
		MemberCount: event.MemberCount,
		Target:      event.Target,
	})
}

func (p *Publisher) RosterChanged(_ context.Context, event domain.RosterEvent) error {
	return p.publish(SubjectSessionRoster, rosterEventPayload{
		SessionID:   event.SessionID,
		BindingID:   event.BindingID,
		MemberID:    event.MemberID,
		DisplayName: event.DisplayName,
		Joined:      event.Joined,
		MemberCount: event.MemberCount,
		Target:      event.Target,
	})
}

func (p *Publisher) SessionCompleted(_ context.Context, event domain.CompletedEvent) error {
	payload := completedEventPayload{
		SessionID: event.SessionID,
		BindingID: event.BindingID,
		GameID:    event.GameID,
		GameName:  event.GameName,
		StartsAt:  event.StartsAt,
		EndedAt:   event.EndedAt,
		Target:    event.Target,
	}
	for _, participant := range event.Participants {
		payload.Participants = append(payload.Participants, participantPayload{
			MemberID:        participant.MemberID,
			DisplayName:     participant.DisplayName,
			DurationSeconds: int64(participant.Duration / time.Second),
		})
	}
	return p.publish(SubjectSessionCompleted, payload)
}

func (p *Publisher) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

var _ coordinator.Notifier = (*Publisher)(nil)
