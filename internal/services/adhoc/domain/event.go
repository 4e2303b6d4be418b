package domain

import "time"

// SessionEvent describes a session lifecycle notification: creation, a status
// change, or a window extension.
type SessionEvent struct {
	SessionID   string
	BindingID   string
	GameID      *string
	GameName    string
	Status      Status
	StartsAt    time.Time
	EndsAt      time.Time
	MemberCount int
	Target      string
}

// RosterEvent describes one membership change on an active session.
type RosterEvent struct {
	SessionID   string
	BindingID   string
	MemberID    string
	DisplayName string
	Joined      bool
	MemberCount int
	Target      string
}

// ParticipantSummary carries one participant's total presence for a completed
// session.
type ParticipantSummary struct {
	MemberID    string
	DisplayName string
	Duration    time.Duration
}

// CompletedEvent describes a finalized session, including per-participant
// presence durations.
type CompletedEvent struct {
	SessionID    string
	BindingID    string
	GameID       *string
	GameName     string
	StartsAt     time.Time
	EndedAt      time.Time
	Participants []ParticipantSummary
	Target       string
}
