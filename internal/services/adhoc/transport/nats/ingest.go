package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	natsgo "github.com/nats-io/nats.go"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/coordinator"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
)

// Sink receives decoded presence and lifecycle signals. The coordinator is
// the production sink.
type Sink interface {
	OnJoin(ctx context.Context, input coordinator.JoinInput)
	OnLeave(ctx context.Context, input coordinator.LeaveInput)
	OnSessionCancelled(ctx context.Context, sessionID string)
	OnSessionDeleted(ctx context.Context, sessionID string)
}

type joinPayload struct {
	BindingID        string  `json:"binding_id"`
	MemberID         string  `json:"member_id"`
	DisplayName      string  `json:"display_name,omitempty"`
	GameResolved     bool    `json:"game_resolved,omitempty"`
	GameID           *string `json:"game_id,omitempty"`
	GameName         string  `json:"game_name,omitempty"`
	ChannelOccupants int     `json:"channel_occupants,omitempty"`
}

type leavePayload struct {
	BindingID    string  `json:"binding_id"`
	MemberID     string  `json:"member_id"`
	GameProvided bool    `json:"game_provided,omitempty"`
	GameID       *string `json:"game_id,omitempty"`
}

type lifecyclePayload struct {
	SessionID string `json:"session_id"`
}

// Ingest subscribes to presence and lifecycle subjects and feeds the sink.
// Malformed payloads are dropped with a log line; this sits on a hot event
// stream and must never take the process down.
type Ingest struct {
	conn *natsgo.Conn
	sink Sink
	logf func(format string, args ...any)

	ctx  context.Context
	subs []*natsgo.Subscription
}

// NewIngest builds an ingest bound to the connection and sink.
func NewIngest(conn *natsgo.Conn, sink Sink, logf func(format string, args ...any)) (*Ingest, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Ingest{conn: conn, sink: sink, logf: logf}, nil
}

// Subscribe starts consuming. One subscription covers both presence subjects
// so joins and leaves for the same channel arrive in publish order.
func (i *Ingest) Subscribe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	i.ctx = ctx

	presence, err := i.conn.Subscribe(subjectPresenceWildcard, i.handlePresence)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subjectPresenceWildcard, err)
	}
	i.subs = append(i.subs, presence)

	lifecycle, err := i.conn.Subscribe(subjectLifecycleWildcard, i.handleLifecycle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subjectLifecycleWildcard, err)
	}
	i.subs = append(i.subs, lifecycle)
	return nil
}

// Unsubscribe stops consuming. Safe to call without a prior Subscribe.
func (i *Ingest) Unsubscribe() {
	for _, sub := range i.subs {
		if err := sub.Unsubscribe(); err != nil {
			i.logf("adhoc: unsubscribe %s: %v", sub.Subject, err)
		}
	}
	i.subs = nil
}

func (i *Ingest) handlePresence(msg *natsgo.Msg) {
	ctx := i.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	switch msg.Subject {
	case SubjectPresenceJoin:
		var payload joinPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			i.logf("adhoc: drop malformed join payload: %v", err)
			return
		}
		i.sink.OnJoin(ctx, coordinator.JoinInput{
			BindingID: payload.BindingID,
			Member: domain.Member{
				ID:          payload.MemberID,
				DisplayName: payload.DisplayName,
			},
			GameResolved:     payload.GameResolved,
			ResolvedGameID:   payload.GameID,
			ResolvedGameName: payload.GameName,
			ChannelOccupants: payload.ChannelOccupants,
		})
	case SubjectPresenceLeave:
		var payload leavePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			i.logf("adhoc: drop malformed leave payload: %v", err)
			return
		}
		i.sink.OnLeave(ctx, coordinator.LeaveInput{
			BindingID:    payload.BindingID,
			MemberID:     payload.MemberID,
			GameProvided: payload.GameProvided,
			GameID:       payload.GameID,
		})
	default:
		i.logf("adhoc: drop presence message on unexpected subject %s", msg.Subject)
	}
}

func (i *Ingest) handleLifecycle(msg *natsgo.Msg) {
	ctx := i.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var payload lifecyclePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		i.logf("adhoc: drop malformed lifecycle payload: %v", err)
		return
	}
	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		i.logf("adhoc: drop lifecycle message without session id on %s", msg.Subject)
		return
	}

	switch msg.Subject {
	case SubjectSessionCancelled:
		i.sink.OnSessionCancelled(ctx, sessionID)
	case SubjectSessionDeleted:
		i.sink.OnSessionDeleted(ctx, sessionID)
	default:
		i.logf("adhoc: drop lifecycle message on unexpected subject %s", msg.Subject)
	}
}
