package domain

import "strings"

// RegistryKey addresses one active session slot in the in-memory registry.
//
// Game-specific bindings use the binding identifier alone. General-lobby
// bindings append the detected game identifier (or the literal "null" bucket
// for occupants with no detected game) so several sessions can coexist on the
// same physical channel.
type RegistryKey string

const nullGameBucket = "null"

// SimpleKey returns the key for a game-specific binding.
func SimpleKey(bindingID string) RegistryKey {
	return RegistryKey(bindingID)
}

// CompositeKey returns the key for a general-lobby binding and a detected
// game. A nil game identifier maps to the explicit "no game detected" bucket.
func CompositeKey(bindingID string, gameID *string) RegistryKey {
	bucket := nullGameBucket
	if gameID != nil && strings.TrimSpace(*gameID) != "" {
		bucket = strings.TrimSpace(*gameID)
	}
	return RegistryKey(bindingID + ":" + bucket)
}

// BindingID returns the binding identifier portion of the key.
func (k RegistryKey) BindingID() string {
	if idx := strings.IndexByte(string(k), ':'); idx >= 0 {
		return string(k)[:idx]
	}
	return string(k)
}

// BelongsTo reports whether the key is the simple key for bindingID or a
// composite key under it.
func (k RegistryKey) BelongsTo(bindingID string) bool {
	if string(k) == bindingID {
		return true
	}
	return strings.HasPrefix(string(k), bindingID+":")
}
