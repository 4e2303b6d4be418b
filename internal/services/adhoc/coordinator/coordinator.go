// Package coordinator turns raw voice-channel presence signals into ad-hoc
// game session lifecycles: creation on first join, membership tracking,
// grace-period-gated finalization, and periodic window extension.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/storage"
)

// Notifier receives lifecycle events. Publish failures are logged by the
// coordinator and never abort a state transition.
type Notifier interface {
	SessionCreated(ctx context.Context, event domain.SessionEvent) error
	SessionStatusChanged(ctx context.Context, event domain.SessionEvent) error
	SessionExtended(ctx context.Context, event domain.SessionEvent) error
	RosterChanged(ctx context.Context, event domain.RosterEvent) error
	SessionCompleted(ctx context.Context, event domain.CompletedEvent) error
}

// Stores groups the persistence collaborators the coordinator depends on.
type Stores struct {
	Sessions     storage.SessionStore
	Participants storage.ParticipantStore
	Bindings     storage.BindingStore
	Settings     storage.SettingsStore
}

// Config assembles a Coordinator.
type Config struct {
	Stores   Stores
	Notifier Notifier
	// Scheduler defaults to a GraceScheduler wired to Finalize.
	Scheduler Scheduler
	// Registry defaults to a fresh empty registry.
	Registry *Registry
	// Now defaults to time.Now.
	Now func() time.Time
	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

// Coordinator is the ad-hoc session lifecycle state machine. Its signal
// handlers always return: collaborator failures are logged and absorbed, never
// propagated to the presence source.
type Coordinator struct {
	stores    Stores
	notifier  Notifier
	scheduler Scheduler
	registry  *Registry
	locks     keyedMutex
	now       func() time.Time
	logf      func(format string, args ...any)

	ownedScheduler *GraceScheduler
}

// New validates the configuration and builds a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Stores.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Stores.Participants == nil {
		return nil, fmt.Errorf("participant store is required")
	}
	if cfg.Stores.Bindings == nil {
		return nil, fmt.Errorf("binding store is required")
	}
	if cfg.Stores.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}

	c := &Coordinator{
		stores:    cfg.Stores,
		notifier:  cfg.Notifier,
		scheduler: cfg.Scheduler,
		registry:  cfg.Registry,
		now:       cfg.Now,
		logf:      cfg.Logf,
	}
	if c.notifier == nil {
		c.notifier = noopNotifier{}
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logf == nil {
		c.logf = log.Printf
	}
	if c.scheduler == nil {
		c.ownedScheduler = NewGraceScheduler(func(sessionID string) {
			c.Finalize(context.Background(), sessionID)
		})
		c.scheduler = c.ownedScheduler
	}
	return c, nil
}

// Close disarms the owned grace scheduler. Coordinators built with an injected
// scheduler leave its lifecycle to the caller.
func (c *Coordinator) Close() {
	if c.ownedScheduler != nil {
		c.ownedScheduler.Stop()
	}
}

// JoinInput is one join signal from the presence source.
type JoinInput struct {
	BindingID string
	Member    domain.Member
	// GameResolved reports whether the presence source ran game detection for
	// this join. When true, ResolvedGameID carries the outcome; nil means "no
	// game detected" and maps to the general lobby's null bucket.
	GameResolved     bool
	ResolvedGameID   *string
	ResolvedGameName string
	// ChannelOccupants, when positive, is the channel occupancy the presence
	// source observed when it emitted this join. Used to hold the binding's
	// minimum-player threshold at this boundary instead of trusting upstream
	// filtering alone.
	ChannelOccupants int
}

// LeaveInput is one leave signal from the presence source.
type LeaveInput struct {
	BindingID string
	MemberID  string
	// GameProvided reports whether the presence source knew which game slot
	// the member was tracked under. When false the coordinator resolves the
	// session by membership scan.
	GameProvided bool
	GameID       *string
}

// OnJoin applies one join signal. It always returns; failures are logged.
func (c *Coordinator) OnJoin(ctx context.Context, input JoinInput) {
	bindingID := strings.TrimSpace(input.BindingID)
	if bindingID == "" {
		c.logf("adhoc: drop join signal with empty binding id")
		return
	}
	input.Member.ID = strings.TrimSpace(input.Member.ID)

	enabled, err := c.stores.Settings.AdhocEnabled(ctx)
	if err != nil {
		c.logf("adhoc: read feature switch: %v", err)
		return
	}
	if !enabled {
		return
	}

	record, err := c.stores.Bindings.GetBinding(ctx, bindingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.logf("adhoc: join for unbound channel %s", bindingID)
		} else {
			c.logf("adhoc: load binding %s: %v", bindingID, err)
		}
		return
	}
	binding := record.Binding()

	effectiveGameID := binding.GameID
	gameName := ""
	if input.GameResolved {
		effectiveGameID = input.ResolvedGameID
		gameName = input.ResolvedGameName
	}
	key := binding.RegistryKey(effectiveGameID)

	unlock := c.locks.lock(key)
	defer unlock()

	if session, ok := c.registry.Get(key); ok {
		if c.attachMember(ctx, key, session, input.Member, binding) {
			return
		}
		// Stale entry was dropped; fall through to creation.
	}
	c.createSession(ctx, key, binding, effectiveGameID, gameName, input)
}

// attachMember adds the member to an existing session. It returns false when
// the registry entry turned out to be stale and was dropped, in which case the
// caller proceeds as if no session existed.
func (c *Coordinator) attachMember(ctx context.Context, key domain.RegistryKey, session *domain.Session, member domain.Member, binding domain.Binding) bool {
	record, err := c.stores.Sessions.GetSession(ctx, session.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.dropEntry(key, session.ID)
		return false
	case err != nil:
		c.logf("adhoc: verify session %s: %v", session.ID, err)
		return true
	case record.Canceled() || record.Status == domain.StatusEnded:
		c.dropEntry(key, session.ID)
		return false
	}

	if member.ID != "" {
		session.AddMember(member.ID)
	}
	c.scheduler.Cancel(session.ID)

	if record.Status == domain.StatusGracePeriod {
		claimed, err := c.stores.Sessions.UpdateSessionStatus(ctx, session.ID, domain.StatusGracePeriod, domain.StatusLive)
		if err != nil {
			c.logf("adhoc: revive session %s: %v", session.ID, err)
			return true
		}
		if !claimed {
			// Lost the race against a concurrent finalize.
			c.dropEntry(key, session.ID)
			return false
		}
		session.Status = domain.StatusLive
		c.notify("status", c.notifier.SessionStatusChanged(ctx, c.sessionEvent(session, binding.NotificationTarget)))
	}

	if member.ID != "" {
		if err := c.stores.Participants.AddParticipant(ctx, session.ID, member, c.now()); err != nil {
			c.logf("adhoc: add participant %s to session %s: %v", member.ID, session.ID, err)
		}
		c.notify("roster", c.notifier.RosterChanged(ctx, domain.RosterEvent{
			SessionID:   session.ID,
			BindingID:   session.BindingID,
			MemberID:    member.ID,
			DisplayName: member.DisplayName,
			Joined:      true,
			MemberCount: session.MemberCount(),
			Target:      binding.NotificationTarget,
		}))
	}

	c.extendSession(ctx, session, binding.NotificationTarget)
	return true
}

func (c *Coordinator) createSession(ctx context.Context, key domain.RegistryKey, binding domain.Binding, gameID *string, gameName string, input JoinInput) {
	now := c.now()

	if binding.MinPlayers > 0 && input.ChannelOccupants > 0 && input.ChannelOccupants < binding.MinPlayers {
		c.logf("adhoc: occupancy %d below threshold %d for binding %s", input.ChannelOccupants, binding.MinPlayers, binding.ID)
		return
	}

	// A deliberately scheduled session owns the slot. Stretch its window when
	// needed instead of spawning a rival ad-hoc session.
	scheduled, err := c.stores.Sessions.FindOverlappingScheduledSession(ctx, binding.ID, gameID, now.Add(-domain.ScheduledOverlapLookback), now.Add(domain.InitialWindow))
	switch {
	case err == nil:
		newEnd := now.Add(domain.InitialWindow)
		if newEnd.After(scheduled.EndsAt) {
			if err := c.stores.Sessions.ExtendSessionWindow(ctx, scheduled.ID, newEnd); err != nil {
				c.logf("adhoc: extend scheduled session %s: %v", scheduled.ID, err)
				return
			}
			scheduled.EndsAt = newEnd
			c.notify("extended", c.notifier.SessionExtended(ctx, domain.SessionEvent{
				SessionID: scheduled.ID,
				BindingID: scheduled.BindingID,
				GameID:    scheduled.GameID,
				GameName:  scheduled.GameName,
				Status:    scheduled.Status,
				StartsAt:  scheduled.StartsAt,
				EndsAt:    scheduled.EndsAt,
				Target:    binding.NotificationTarget,
			}))
		}
		return
	case !errors.Is(err, storage.ErrNotFound):
		c.logf("adhoc: scheduled session lookup for binding %s: %v", binding.ID, err)
		return
	}

	creator := input.Member.ID
	if creator == "" {
		creator = strings.TrimSpace(binding.FallbackOrganizerID)
	}
	if creator == "" {
		c.logf("adhoc: no creator identity for binding %s, session not created", binding.ID)
		return
	}

	endsAt := now.Add(domain.InitialWindow)
	sessionID, err := c.stores.Sessions.CreateSession(ctx, storage.NewSessionInput{
		BindingID: binding.ID,
		GameID:    gameID,
		GameName:  gameName,
		Status:    domain.StatusLive,
		AdHoc:     true,
		CreatedBy: creator,
		StartsAt:  now,
		EndsAt:    endsAt,
	})
	if err != nil {
		c.logf("adhoc: create session for binding %s: %v", binding.ID, err)
		return
	}

	session := domain.NewSession(sessionID, binding.ID, gameID, now, endsAt)
	session.GameName = gameName
	session.LastExtendedAt = now
	if input.Member.ID != "" {
		session.AddMember(input.Member.ID)
	}
	c.registry.Put(key, session)

	if input.Member.ID != "" {
		if err := c.stores.Participants.AddParticipant(ctx, sessionID, input.Member, now); err != nil {
			c.logf("adhoc: add participant %s to session %s: %v", input.Member.ID, sessionID, err)
		}
	}
	c.notify("created", c.notifier.SessionCreated(ctx, c.sessionEvent(session, binding.NotificationTarget)))
}

// OnLeave applies one leave signal. Unknown sessions and unknown members are
// no-ops so late or duplicate signals stay harmless.
func (c *Coordinator) OnLeave(ctx context.Context, input LeaveInput) {
	bindingID := strings.TrimSpace(input.BindingID)
	memberID := strings.TrimSpace(input.MemberID)
	if bindingID == "" || memberID == "" {
		c.logf("adhoc: drop leave signal with empty identifiers")
		return
	}

	key, ok := c.resolveLeaveKey(bindingID, memberID, input)
	if !ok {
		return
	}

	unlock := c.locks.lock(key)
	defer unlock()

	session, ok := c.registry.Get(key)
	if !ok {
		return
	}

	record, err := c.stores.Sessions.GetSession(ctx, session.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.dropEntry(key, session.ID)
		return
	case err != nil:
		c.logf("adhoc: verify session %s: %v", session.ID, err)
		return
	case record.Canceled() || record.Status == domain.StatusEnded:
		c.dropEntry(key, session.ID)
		return
	}

	target := ""
	grace := domain.DefaultGracePeriod
	if bindingRecord, err := c.stores.Bindings.GetBinding(ctx, bindingID); err == nil {
		binding := bindingRecord.Binding()
		target = binding.NotificationTarget
		grace = binding.GracePeriod()
	} else {
		c.logf("adhoc: load binding %s: %v", bindingID, err)
	}

	if session.HasMember(memberID) {
		session.RemoveMember(memberID)
		if err := c.stores.Participants.MarkParticipantLeft(ctx, session.ID, memberID, c.now()); err != nil {
			c.logf("adhoc: mark participant %s left session %s: %v", memberID, session.ID, err)
		}
		c.notify("roster", c.notifier.RosterChanged(ctx, domain.RosterEvent{
			SessionID:   session.ID,
			BindingID:   bindingID,
			MemberID:    memberID,
			Joined:      false,
			MemberCount: session.MemberCount(),
			Target:      target,
		}))
	}

	if session.MemberCount() > 0 {
		return
	}
	if record.Status != domain.StatusLive {
		// Already draining. A duplicate leave must leave the pending grace
		// timer alone.
		return
	}

	// Arm the timer before flipping status. A session that cannot be armed
	// must stay live, otherwise nothing would ever finalize it.
	if err := c.scheduler.Schedule(session.ID, grace); err != nil {
		c.logf("adhoc: schedule finalize for session %s: %v", session.ID, err)
		return
	}

	claimed, err := c.stores.Sessions.UpdateSessionStatus(ctx, session.ID, domain.StatusLive, domain.StatusGracePeriod)
	if err != nil || !claimed {
		c.scheduler.Cancel(session.ID)
		if err != nil {
			c.logf("adhoc: drain session %s: %v", session.ID, err)
		}
		return
	}
	session.Status = domain.StatusGracePeriod
	c.notify("status", c.notifier.SessionStatusChanged(ctx, c.sessionEvent(session, target)))
}

// resolveLeaveKey locates the registry key for a leave signal: the composite
// key when the caller names a game, then the binding's simple key, then a
// membership scan across the binding's composite keys.
func (c *Coordinator) resolveLeaveKey(bindingID, memberID string, input LeaveInput) (domain.RegistryKey, bool) {
	if input.GameProvided {
		key := domain.CompositeKey(bindingID, input.GameID)
		if _, ok := c.registry.Get(key); ok {
			return key, true
		}
	}

	simple := domain.SimpleKey(bindingID)
	if _, ok := c.registry.Get(simple); ok {
		return simple, true
	}

	matches := c.registry.FindMember(bindingID, memberID)
	if len(matches) == 0 {
		return "", false
	}
	if len(matches) > 1 {
		c.logf("adhoc: member %s tracked in %d sessions under binding %s, resolving to %s", memberID, len(matches), bindingID, matches[0].Key)
	}
	return matches[0].Key, true
}

// Finalize ends a drained session. Invoked by the grace timer; safe against
// duplicate and late fires through the conditional status claim.
func (c *Coordinator) Finalize(ctx context.Context, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}

	if key, _, ok := c.registry.FindBySessionID(sessionID); ok {
		unlock := c.locks.lock(key)
		defer unlock()
	}

	claimed, err := c.stores.Sessions.UpdateSessionStatus(ctx, sessionID, domain.StatusGracePeriod, domain.StatusEnded)
	if err != nil {
		c.logf("adhoc: finalize claim for session %s: %v", sessionID, err)
		return
	}
	if !claimed {
		// A rejoin flipped the session back to live, or another finalize won.
		return
	}

	endedAt := c.now()
	if err := c.stores.Sessions.ExtendSessionWindow(ctx, sessionID, endedAt); err != nil {
		c.logf("adhoc: freeze end time for session %s: %v", sessionID, err)
	}
	if err := c.stores.Participants.FinalizeParticipants(ctx, sessionID, endedAt); err != nil {
		c.logf("adhoc: finalize participants for session %s: %v", sessionID, err)
	}

	record, err := c.stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		c.logf("adhoc: load finalized session %s: %v", sessionID, err)
	}
	target := ""
	if record.BindingID != "" {
		target = c.notificationTarget(ctx, record.BindingID)
	}

	event := domain.CompletedEvent{
		SessionID: sessionID,
		BindingID: record.BindingID,
		GameID:    record.GameID,
		GameName:  record.GameName,
		StartsAt:  record.StartsAt,
		EndedAt:   endedAt,
		Target:    target,
	}
	if roster, err := c.stores.Participants.ListRoster(ctx, sessionID); err != nil {
		c.logf("adhoc: load roster for session %s: %v", sessionID, err)
	} else {
		event.Participants = summarizeRoster(roster, endedAt)
	}
	c.notify("completed", c.notifier.SessionCompleted(ctx, event))

	c.scheduler.Cancel(sessionID)
	c.registry.DeleteSessionID(sessionID)
}

// OnSessionCancelled handles an out-of-band cancellation: the persisted row is
// stamped, the grace timer disarmed, and the registry slot reopened.
func (c *Coordinator) OnSessionCancelled(ctx context.Context, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	if err := c.stores.Sessions.MarkSessionCanceled(ctx, sessionID, c.now()); err != nil {
		c.logf("adhoc: mark session %s cancelled: %v", sessionID, err)
	}
	c.releaseSession(sessionID)
}

// OnSessionDeleted handles an out-of-band deletion of the persisted row.
func (c *Coordinator) OnSessionDeleted(ctx context.Context, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	c.releaseSession(sessionID)
}

func (c *Coordinator) releaseSession(sessionID string) {
	key, _, ok := c.registry.FindBySessionID(sessionID)
	if !ok {
		c.scheduler.Cancel(sessionID)
		return
	}

	unlock := c.locks.lock(key)
	defer unlock()

	if session, ok := c.registry.Get(key); ok && session.ID == sessionID {
		c.registry.Delete(key)
	}
	c.scheduler.Cancel(sessionID)
}

// dropEntry discards a stale registry entry. Caller holds the key lock.
func (c *Coordinator) dropEntry(key domain.RegistryKey, sessionID string) {
	c.scheduler.Cancel(sessionID)
	c.registry.Delete(key)
	c.logf("adhoc: dropped stale registry entry %s for session %s", key, sessionID)
}

// HasAnyActiveEvent reports whether any session, for any game, currently owns
// the binding's channel.
func (c *Coordinator) HasAnyActiveEvent(bindingID string) bool {
	return c.registry.HasBinding(strings.TrimSpace(bindingID))
}

// SessionState is a point-in-time snapshot of one registry entry.
type SessionState struct {
	SessionID   string
	BindingID   string
	GameID      *string
	GameName    string
	Status      domain.Status
	StartsAt    time.Time
	EndsAt      time.Time
	MemberCount int
}

// ActiveState returns the session registered under the binding's simple key.
func (c *Coordinator) ActiveState(bindingID string) (SessionState, bool) {
	return c.stateForKey(domain.SimpleKey(strings.TrimSpace(bindingID)))
}

// ActiveGameState returns the session registered under the binding's composite
// key for the game. A nil game addresses the "no game detected" bucket.
func (c *Coordinator) ActiveGameState(bindingID string, gameID *string) (SessionState, bool) {
	return c.stateForKey(domain.CompositeKey(strings.TrimSpace(bindingID), gameID))
}

func (c *Coordinator) stateForKey(key domain.RegistryKey) (SessionState, bool) {
	unlock := c.locks.lock(key)
	defer unlock()

	session, ok := c.registry.Get(key)
	if !ok {
		return SessionState{}, false
	}
	return SessionState{
		SessionID:   session.ID,
		BindingID:   session.BindingID,
		GameID:      session.GameID,
		GameName:    session.GameName,
		Status:      session.Status,
		StartsAt:    session.StartsAt,
		EndsAt:      session.EndsAt,
		MemberCount: session.MemberCount(),
	}, true
}

// SweepExtensions applies the extension rule to every occupied session.
func (c *Coordinator) SweepExtensions(ctx context.Context) {
	for _, key := range c.registry.Keys() {
		unlock := c.locks.lock(key)
		session, ok := c.registry.Get(key)
		if ok && session.MemberCount() > 0 {
			c.extendSession(ctx, session, c.notificationTarget(ctx, session.BindingID))
		}
		unlock()
	}
}

// extendSession pushes the session window to now plus the initial window,
// throttled so presence-heavy sessions do not hammer storage. Caller holds
// the key lock.
func (c *Coordinator) extendSession(ctx context.Context, session *domain.Session, target string) {
	now := c.now()
	if now.Sub(session.LastExtendedAt) < domain.ExtendThrottle {
		return
	}

	newEnd := now.Add(domain.InitialWindow)
	if err := c.stores.Sessions.ExtendSessionWindow(ctx, session.ID, newEnd); err != nil {
		c.logf("adhoc: extend session %s: %v", session.ID, err)
		return
	}
	session.EndsAt = newEnd
	session.LastExtendedAt = now
	c.notify("extended", c.notifier.SessionExtended(ctx, c.sessionEvent(session, target)))
}

func (c *Coordinator) notificationTarget(ctx context.Context, bindingID string) string {
	record, err := c.stores.Bindings.GetBinding(ctx, bindingID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logf("adhoc: load binding %s: %v", bindingID, err)
		}
		return ""
	}
	return record.NotificationTarget
}

func (c *Coordinator) sessionEvent(session *domain.Session, target string) domain.SessionEvent {
	return domain.SessionEvent{
		SessionID:   session.ID,
		BindingID:   session.BindingID,
		GameID:      session.GameID,
		GameName:    session.GameName,
		Status:      session.Status,
		StartsAt:    session.StartsAt,
		EndsAt:      session.EndsAt,
		MemberCount: session.MemberCount(),
		Target:      target,
	}
}

func (c *Coordinator) notify(kind string, err error) {
	if err != nil {
		c.logf("adhoc: publish %s event: %v", kind, err)
	}
}

// summarizeRoster folds presence spans into one summary per member, preserving
// first-seen order. Spans still open are measured against the end instant.
func summarizeRoster(entries []storage.RosterEntry, endedAt time.Time) []domain.ParticipantSummary {
	index := make(map[string]int, len(entries))
	var summaries []domain.ParticipantSummary
	for _, entry := range entries {
		i, ok := index[entry.MemberID]
		if !ok {
			i = len(summaries)
			index[entry.MemberID] = i
			summaries = append(summaries, domain.ParticipantSummary{
				MemberID:    entry.MemberID,
				DisplayName: entry.DisplayName,
			})
		}
		if summaries[i].DisplayName == "" {
			summaries[i].DisplayName = entry.DisplayName
		}
		summaries[i].Duration += entry.Duration(endedAt)
	}
	return summaries
}

type noopNotifier struct{}

func (noopNotifier) SessionCreated(context.Context, domain.SessionEvent) error       { return nil }
func (noopNotifier) SessionStatusChanged(context.Context, domain.SessionEvent) error { return nil }
func (noopNotifier) SessionExtended(context.Context, domain.SessionEvent) error      { return nil }
func (noopNotifier) RosterChanged(context.Context, domain.RosterEvent) error         { return nil }
func (noopNotifier) SessionCompleted(context.Context, domain.CompletedEvent) error   { return nil }
