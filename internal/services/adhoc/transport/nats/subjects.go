// Package nats carries presence signals into the coordinator and lifecycle
// events out of it over NATS subjects.
package nats

// Presence subjects. Both live under one wildcard so a single subscription
// preserves the detector's join/leave ordering per channel.
const (
	SubjectPresenceJoin  = "adhoc.presence.join"
	SubjectPresenceLeave = "adhoc.presence.leave"

	subjectPresenceWildcard = "adhoc.presence.*"
)

// Lifecycle hook subjects, emitted by the persistence surface when a human
// cancels or deletes a session out of band.
const (
	SubjectSessionCancelled = "adhoc.lifecycle.cancelled"
	SubjectSessionDeleted   = "adhoc.lifecycle.deleted"

	subjectLifecycleWildcard = "adhoc.lifecycle.*"
)

// Outbound lifecycle event subjects.
const (
	SubjectSessionCreated       = "adhoc.session.created"
	SubjectSessionStatusChanged = "adhoc.session.status_changed"
	SubjectSessionExtended      = "adhoc.session.extended"
	SubjectSessionRoster        = "adhoc.session.roster"
	SubjectSessionCompleted     = "adhoc.session.completed"
)
