package domain

import (
	"fmt"
	"sync"
	"time"
)

// InitialWindow is the lifetime granted to a session on creation and on each
// extension.
const InitialWindow = time.Hour

// ExtendThrottle is the minimum interval between two persisted window
// extensions for the same session.
const ExtendThrottle = 5 * time.Minute

// SweepInterval is how often occupied sessions are re-extended independently
// of presence traffic.
const SweepInterval = 5 * time.Minute

// ScheduledOverlapLookback is how far behind "now" the coordinator searches
// for a deliberately scheduled session before spawning an ad-hoc one, so a
// scheduled session that just ended still suppresses the spawn.
const ScheduledOverlapLookback = 30 * time.Minute

// Status is the session lifecycle status.
type Status string

const (
	// StatusLive marks a session with current or expected occupancy.
	StatusLive Status = "live"
	// StatusGracePeriod marks an emptied session awaiting finalization.
	StatusGracePeriod Status = "grace_period"
	// StatusEnded marks a finalized session. Terminal.
	StatusEnded Status = "ended"
)

// ParseStatus validates a stored status value.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusLive, StatusGracePeriod, StatusEnded:
		return Status(value), nil
	default:
		return "", fmt.Errorf("unknown session status %q", value)
	}
}

// Member identifies one present community member.
type Member struct {
	ID          string
	DisplayName string
}

// Session is the in-memory lifecycle state for one registry key.
//
// The persisted session row remains the source of truth for status; this
// struct caches the key-to-session mapping and the membership needed for
// grace-timer decisions. Exported fields are mutated only under the
// coordinator's per-key lock. The member set carries its own lock because
// membership scans cross key boundaries.
type Session struct {
	ID        string
	BindingID string
	// GameID is the effective game for this session: the binding's configured
	// game, or the game resolved at creation for general lobbies. Nil means
	// the "no game detected" bucket of a general lobby.
	GameID   *string
	GameName string
	Status   Status
	StartsAt time.Time
	EndsAt   time.Time
	// LastExtendedAt throttles window extensions. Updated only on an actual
	// extension, never on a throttled skip.
	LastExtendedAt time.Time

	membersMu sync.Mutex
	members   map[string]struct{}
}

// NewSession builds a live session with an empty member set.
func NewSession(id, bindingID string, gameID *string, startsAt, endsAt time.Time) *Session {
	return &Session{
		ID:        id,
		BindingID: bindingID,
		GameID:    gameID,
		Status:    StatusLive,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		members:   make(map[string]struct{}),
	}
}

// AddMember records a member as present.
func (s *Session) AddMember(memberID string) {
	s.membersMu.Lock()
	defer s.membersMu.Unlock()
	if s.members == nil {
		s.members = make(map[string]struct{})
	}
	s.members[memberID] = struct{}{}
}

// RemoveMember records a member as departed. Removing an unknown member is a
// no-op so duplicate leave signals stay idempotent.
func (s *Session) RemoveMember(memberID string) {
	s.membersMu.Lock()
	defer s.membersMu.Unlock()
	delete(s.members, memberID)
}

// HasMember reports whether the member is currently tracked as present.
func (s *Session) HasMember(memberID string) bool {
	s.membersMu.Lock()
	defer s.membersMu.Unlock()
	_, ok := s.members[memberID]
	return ok
}

// MemberCount returns the number of tracked present members.
func (s *Session) MemberCount() int {
	s.membersMu.Lock()
	defer s.membersMu.Unlock()
	return len(s.members)
}

// MemberIDs returns the tracked member identifiers in unspecified order.
func (s *Session) MemberIDs() []string {
	s.membersMu.Lock()
	defer s.membersMu.Unlock()
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	return ids
}
