// Package domain defines the ad-hoc session model: channel bindings, registry
// keys, session lifecycle statuses, and the lifecycle event payloads emitted
// to notification consumers.
package domain
