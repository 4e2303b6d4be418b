package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
)

type fakeConn struct {
	published map[string][][]byte
	err       error
}

func newFakeConn() *fakeConn {
	return &fakeConn{published: make(map[string][][]byte)}
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.published[subject] = append(c.published[subject], data)
	return nil
}

func (c *fakeConn) one(t *testing.T, subject string) []byte {
	t.Helper()
	messages := c.published[subject]
	if len(messages) != 1 {
		t.Fatalf("expected 1 message on %s, got %d", subject, len(messages))
	}
	return messages[0]
}

func TestPublisherSessionCreated(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	publisher, err := NewPublisher(conn)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	game := "7"
	starts := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)
	err = publisher.SessionCreated(context.Background(), domain.SessionEvent{
		SessionID:   "s1",
		BindingID:   "lobby",
		GameID:      &game,
		GameName:    "Game7",
		Status:      domain.StatusLive,
		StartsAt:    starts,
		EndsAt:      starts.Add(time.Hour),
		MemberCount: 1,
		Target:      "lounge",
	})
	if err != nil {
		t.Fatalf("publish created: %v", err)
	}

	var payload sessionEventPayload
	if err := json.Unmarshal(conn.one(t, SubjectSessionCreated), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SessionID != "s1" || payload.BindingID != "lobby" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.GameID == nil || *payload.GameID != "7" {
		t.Fatalf("unexpected game %v", payload.GameID)
	}
	if payload.Status != "live" || payload.MemberCount != 1 || payload.Target != "lounge" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPublisherRosterChanged(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	publisher, _ := NewPublisher(conn)

	err := publisher.RosterChanged(context.Background(), domain.RosterEvent{
		SessionID:   "s1",
		BindingID:   "lobby",
		MemberID:    "m1",
		DisplayName: "Rook",
		Joined:      true,
		MemberCount: 2,
	})
	if err != nil {
		t.Fatalf("publish roster: %v", err)
	}

	var payload rosterEventPayload
	if err := json.Unmarshal(conn.one(t, SubjectSessionRoster), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.MemberID != "m1" || !payload.Joined || payload.MemberCount != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPublisherSessionCompletedDurations(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	publisher, _ := NewPublisher(conn)

	starts := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)
	err := publisher.SessionCompleted(context.Background(), domain.CompletedEvent{
		SessionID: "s1",
		BindingID: "lobby",
		StartsAt:  starts,
		EndedAt:   starts.Add(45 * time.Minute),
		Participants: []domain.ParticipantSummary{
			{MemberID: "m1", DisplayName: "Rook", Duration: 45 * time.Minute},
			{MemberID: "m2", Duration: 90 * time.Second},
		},
	})
	if err != nil {
		t.Fatalf("publish completed: %v", err)
	}

	var payload completedEventPayload
	if err := json.Unmarshal(conn.one(t, SubjectSessionCompleted), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(payload.Participants))
	}
	if payload.Participants[0].DurationSeconds != 2700 {
		t.Fatalf("expected 2700s, got %d", payload.Participants[0].DurationSeconds)
	}
	if payload.Participants[1].DurationSeconds != 90 {
		t.Fatalf("expected 90s, got %d", payload.Participants[1].DurationSeconds)
	}
}

func TestPublisherWrapsPublishFailure(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.err = fmt.Errorf("connection closed")
	publisher, _ := NewPublisher(conn)

	err := publisher.SessionExtended(context.Background(), domain.SessionEvent{SessionID: "s1"})
	if err == nil {
		t.Fatal("expected publish failure surfaced")
	}
}

func TestNewPublisherRequiresConn(t *testing.T) {
	t.Parallel()

	if _, err := NewPublisher(nil); err == nil {
		t.Fatal("expected missing connection error")
	}
}
