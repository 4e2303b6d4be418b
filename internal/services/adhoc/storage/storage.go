// Package storage defines the persistence boundary for the ad-hoc session
// coordinator.
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/gathering.space/internal/platform/errors"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// SessionRecord is the persisted session row. The store is the long-lived
// source of truth for status; the coordinator's registry only caches the
// key-to-session mapping.
type SessionRecord struct {
	ID        string
	BindingID string
	// GameID is the effective game resolved at creation. Nil for the general
	// lobby "no game detected" bucket and for scheduled sessions without one.
	GameID   *string
	GameName string
	Status   domain.Status
	// AdHoc distinguishes coordinator-spawned sessions from deliberately
	// scheduled ones.
	AdHoc     bool
	CreatedBy string
	StartsAt  time.Time
	EndsAt    time.Time
	// CanceledAt is set when a human cancels the session out of band.
	CanceledAt *time.Time
}

// Canceled reports whether the session was cancelled out of band.
func (r SessionRecord) Canceled() bool {
	return r.CanceledAt != nil
}

// NewSessionInput describes one session to create.
type NewSessionInput struct {
	BindingID string
	GameID    *string
	GameName  string
	Status    domain.Status
	AdHoc     bool
	CreatedBy string
	StartsAt  time.Time
	EndsAt    time.Time
}

// RosterEntry is one participant row with presence timestamps.
type RosterEntry struct {
	SessionID   string
	MemberID    string
	DisplayName string
	JoinedAt    time.Time
	LeftAt      *time.Time
}

// Duration returns the participant's presence span. Participants still marked
// present are measured against the provided fallback instant.
func (e RosterEntry) Duration(fallbackEnd time.Time) time.Duration {
	end := fallbackEnd
	if e.LeftAt != nil {
		end = *e.LeftAt
	}
	if end.Before(e.JoinedAt) {
		return 0
	}
	return end.Sub(e.JoinedAt)
}

// BindingRecord is one persisted channel binding.
type BindingRecord struct {
	ID                  string
	GameID              *string
	MinPlayers          int
	GracePeriodMinutes  int
	NotificationTarget  string
	FallbackOrganizerID string
}

// Binding converts the record to its domain form.
func (r BindingRecord) Binding() domain.Binding {
	return domain.Binding{
		ID:                  r.ID,
		GameID:              r.GameID,
		MinPlayers:          r.MinPlayers,
		GracePeriodMinutes:  r.GracePeriodMinutes,
		NotificationTarget:  r.NotificationTarget,
		FallbackOrganizerID: r.FallbackOrganizerID,
	}
}

// SessionStore owns session lifecycle rows.
type SessionStore interface {
	// CreateSession persists a new session and returns its identifier.
	CreateSession(ctx context.Context, input NewSessionInput) (string, error)
	// GetSession returns one session row.
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	// UpdateSessionStatus performs a conditional status transition. The
	// returned bool reports whether this caller claimed the transition; a
	// false result with nil error means the stored status was not `from`.
	UpdateSessionStatus(ctx context.Context, sessionID string, from, to domain.Status) (bool, error)
	// ExtendSessionWindow sets the session end time.
	ExtendSessionWindow(ctx context.Context, sessionID string, endsAt time.Time) error
	// ListLiveSessions returns non-cancelled sessions with live status, for
	// startup recovery.
	ListLiveSessions(ctx context.Context) ([]SessionRecord, error)
	// FindOverlappingScheduledSession returns a non-ad-hoc session for the
	// binding and game whose window overlaps [from, to). ErrNotFound when
	// none exists.
	FindOverlappingScheduledSession(ctx context.Context, bindingID string, gameID *string, from, to time.Time) (SessionRecord, error)
	// MarkSessionCanceled stamps the cancellation instant. Stamping an
	// already-cancelled or missing session is a no-op.
	MarkSessionCanceled(ctx context.Context, sessionID string, canceledAt time.Time) error
}

// ParticipantStore owns roster rows and presence timestamps.
type ParticipantStore interface {
	// AddParticipant records a member as present. Re-adding a member who
	// previously left opens a fresh presence span.
	AddParticipant(ctx context.Context, sessionID string, member domain.Member, joinedAt time.Time) error
	// MarkParticipantLeft stamps the open presence span for the member.
	MarkParticipantLeft(ctx context.Context, sessionID, memberID string, leftAt time.Time) error
	// FinalizeParticipants stamps every open presence span for the session.
	FinalizeParticipants(ctx context.Context, sessionID string, endedAt time.Time) error
	// ListRoster returns all presence spans for the session.
	ListRoster(ctx context.Context, sessionID string) ([]RosterEntry, error)
}

// BindingStore reads operator-owned channel binding configuration.
type BindingStore interface {
	GetBinding(ctx context.Context, bindingID string) (BindingRecord, error)
	PutBinding(ctx context.Context, record BindingRecord) error
}

// SettingsStore reads coordinator feature switches.
type SettingsStore interface {
	AdhocEnabled(ctx context.Context) (bool, error)
	SetAdhocEnabled(ctx context.Context, enabled bool) error
}
