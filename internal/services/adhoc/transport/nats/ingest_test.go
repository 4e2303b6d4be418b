package nats

import (
	"context"
	"testing"

	natsgo "github.com/nats-io/nats.go"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/coordinator"
)

type fakeSink struct {
	joins     []coordinator.JoinInput
	leaves    []coordinator.LeaveInput
	cancelled []string
	deleted   []string
}

func (s *fakeSink) OnJoin(_ context.Context, input coordinator.JoinInput) {
	s.joins = append(s.joins, input)
}

func (s *fakeSink) OnLeave(_ context.Context, input coordinator.LeaveInput) {
	s.leaves = append(s.leaves, input)
}

func (s *fakeSink) OnSessionCancelled(_ context.Context, sessionID string) {
	s.cancelled = append(s.cancelled, sessionID)
}

func (s *fakeSink) OnSessionDeleted(_ context.Context, sessionID string) {
	s.deleted = append(s.deleted, sessionID)
}

func newTestIngest(t *testing.T) (*Ingest, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	ingest := &Ingest{sink: sink, logf: t.Logf}
	return ingest, sink
}

func TestHandlePresenceJoin(t *testing.T) {
	t.Parallel()

	ingest, sink := newTestIngest(t)

	ingest.handlePresence(&natsgo.Msg{
		Subject: SubjectPresenceJoin,
		Data: []byte(`{
			"binding_id": "lobby",
			"member_id": "m1",
			"display_name": "Rook",
			"game_resolved": true,
			"game_id": "7",
			"game_name": "Game7",
			"channel_occupants": 3
		}`),
	})

	if len(sink.joins) != 1 {
		t.Fatalf("expected 1 join, got %d", len(sink.joins))
	}
	join := sink.joins[0]
	if join.BindingID != "lobby" || join.Member.ID != "m1" || join.Member.DisplayName != "Rook" {
		t.Fatalf("unexpected join %+v", join)
	}
	if !join.GameResolved || join.ResolvedGameID == nil || *join.ResolvedGameID != "7" {
		t.Fatalf("unexpected game resolution %+v", join)
	}
	if join.ResolvedGameName != "Game7" {
		t.Fatalf("unexpected game name %q", join.ResolvedGameName)
	}
	if join.ChannelOccupants != 3 {
		t.Fatalf("unexpected occupancy %d", join.ChannelOccupants)
	}
}

func TestHandlePresenceJoinNullGame(t *testing.T) {
	t.Parallel()

	ingest, sink := newTestIngest(t)

	// Detection ran and found nothing: game_resolved true, no game_id.
	ingest.handlePresence(&natsgo.Msg{
		Subject: SubjectPresenceJoin,
		Data:    []byte(`{"binding_id": "lobby", "member_id": "m1", "game_resolved": true}`),
	})

	if len(sink.joins) != 1 {
		t.Fatalf("expected 1 join, got %d", len(sink.joins))
	}
	if !sink.joins[0].GameResolved || sink.joins[0].ResolvedGameID != nil {
		t.Fatalf("expected resolved nil game, got %+v", sink.joins[0])
	}
}

func TestHandlePresenceLeave(t *testing.T) {
	t.Parallel()

	ingest, sink := newTestIngest(t)

	ingest.handlePresence(&natsgo.Msg{
		Subject: SubjectPresenceLeave,
		Data:    []byte(`{"binding_id": "lobby", "member_id": "m1", "game_provided": true, "game_id": "7"}`),
	})

	if len(sink.leaves) != 1 {
		t.Fatalf("expected 1 leave, got %d", len(sink.leaves))
	}
	leave := sink.leaves[0]
	if leave.BindingID != "lobby" || leave.MemberID != "m1" {
		t.Fatalf("unexpected leave %+v", leave)
	}
	if !leave.GameProvided || leave.GameID == nil || *leave.GameID != "7" {
		t.Fatalf("unexpected game hint %+v", leave)
	}
}

func TestHandlePresenceDropsMalformedPayload(t *testing.T) {
	t.Parallel()

	ingest, sink := newTestIngest(t)

	ingest.handlePresence(&natsgo.Msg{Subject: SubjectPresenceJoin, Data: []byte(`{broken`)})
	ingest.handlePresence(&natsgo.Msg{Subject: SubjectPresenceLeave, Data: []byte(`[]`)})
	ingest.handlePresence(&natsgo.Msg{Subject: "adhoc.presence.other", Data: []byte(`{}`)})

	if len(sink.joins) != 0 || len(sink.leaves) != 0 {
		t.Fatalf("expected malformed payloads dropped, got %d joins %d leaves", len(sink.joins), len(sink.leaves))
	}
}

func TestHandleLifecycle(t *testing.T) {
	t.Parallel()

	ingest, sink := newTestIngest(t)

	ingest.handleLifecycle(&natsgo.Msg{
		Subject: SubjectSessionCancelled,
		Data:    []byte(`{"session_id": "s1"}`),
	})
	ingest.handleLifecycle(&natsgo.Msg{
		Subject: SubjectSessionDeleted,
		Data:    []byte(`{"session_id": "s2"}`),
	})

	if len(sink.cancelled) != 1 || sink.cancelled[0] != "s1" {
		t.Fatalf("unexpected cancellations %v", sink.cancelled)
	}
	if len(sink.deleted) != 1 || sink.deleted[0] != "s2" {
		t.Fatalf("unexpected deletions %v", sink.deleted)
	}
}

func TestHandleLifecycleRequiresSessionID(t *testing.T) {
	t.Parallel()

	ingest, sink := newTestIngest(t)

	ingest.handleLifecycle(&natsgo.Msg{Subject: SubjectSessionCancelled, Data: []byte(`{}`)})
	ingest.handleLifecycle(&natsgo.Msg{Subject: SubjectSessionCancelled, Data: []byte(`{"session_id": "  "}`)})

	if len(sink.cancelled) != 0 {
		t.Fatalf("expected empty session ids dropped, got %v", sink.cancelled)
	}
}

func TestNewIngestValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewIngest(nil, &fakeSink{}, nil); err == nil {
		t.Fatal("expected missing connection error")
	}
}
