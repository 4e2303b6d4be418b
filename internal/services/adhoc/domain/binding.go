package domain

import "time"

// DefaultGracePeriod applies when a binding does not configure one.
const DefaultGracePeriod = 5 * time.Minute

// MinGracePeriod is the floor for configured grace periods. A zero grace
// period would finalize a session the instant its channel empties, so a brief
// reconnect blip would tear the session down.
const MinGracePeriod = time.Minute

// Binding is the static configuration tying a voice channel to ad-hoc session
// tracking. Bindings are operator-owned and read-only to the coordinator.
type Binding struct {
	// ID identifies the bound voice channel.
	ID string
	// GameID pins the binding to a single game. When nil the channel is a
	// general lobby and the game is detected per occupant.
	GameID *string
	// MinPlayers is the occupancy threshold the presence source applies
	// before reporting joins for session creation.
	MinPlayers int
	// GracePeriodMinutes configures how long an emptied session lingers
	// before finalization.
	GracePeriodMinutes int
	// NotificationTarget addresses where lifecycle notifications are posted.
	NotificationTarget string
	// FallbackOrganizerID is credited as session creator when the joining
	// member carries no usable identity.
	FallbackOrganizerID string
}

// GracePeriod resolves the binding's grace duration, applying the default and
// the floor.
func (b Binding) GracePeriod() time.Duration {
	if b.GracePeriodMinutes <= 0 {
		return DefaultGracePeriod
	}
	grace := time.Duration(b.GracePeriodMinutes) * time.Minute
	if grace < MinGracePeriod {
		return MinGracePeriod
	}
	return grace
}

// GeneralLobby reports whether the binding hosts per-game concurrent sessions.
func (b Binding) GeneralLobby() bool {
	return b.GameID == nil
}

// RegistryKey derives the key a session for this binding registers under.
// Game-specific bindings use the simple key; general lobbies use a composite
// key so one physical channel can host one session per detected game.
func (b Binding) RegistryKey(effectiveGameID *string) RegistryKey {
	if !b.GeneralLobby() {
		return SimpleKey(b.ID)
	}
	return CompositeKey(b.ID, effectiveGameID)
}
