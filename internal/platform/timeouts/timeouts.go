// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// NATSConnect caps the wait time when establishing the NATS connection.
const NATSConnect = 5 * time.Second

// NATSDrain limits how long a NATS connection drains subscriptions during
// graceful shutdown.
const NATSDrain = 5 * time.Second

// Shutdown limits how long the runtime waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
