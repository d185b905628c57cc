package models

import "time"

// Policy is a fixed (limit, window) pair bound to a rate-limit kind.
type Policy struct {
	Kind   KeyKind
	Limit  int
	Window time.Duration
}

// Rate-limit policy parameters.
const (
	RoomCreationLimit  = 5
	RoomCreationWindow = time.Hour
	ConnectionLimit    = 20
	ConnectionWindow   = 10 * time.Minute
	APILimit           = 100
	APIWindow          = time.Minute
)

// Lifecycle thresholds.
const (
	MaxCallDuration    = time.Hour
	OldRoomThreshold   = 2 * time.Hour
	EmptyRoomThreshold = 30 * time.Minute
)

// PolicyFor returns the rate-limit policy for kind. Each call builds a fresh
// value.
func PolicyFor(kind KeyKind) (Policy, bool) {
	switch kind {
	case KindRoomCreation:
		return Policy{Kind: kind, Limit: RoomCreationLimit, Window: RoomCreationWindow}, true
	case KindConnections:
		return Policy{Kind: kind, Limit: ConnectionLimit, Window: ConnectionWindow}, true
	case KindAPI:
		return Policy{Kind: kind, Limit: APILimit, Window: APIWindow}, true
	default:
		return Policy{}, false
	}
}
