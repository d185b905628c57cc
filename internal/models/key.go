// Package models - Limiter keys, policies and result types.
// This file defines the structured key that addresses every piece of limiter state.
//
// Key Design:
// - A key is a policy kind plus an opaque subject (IP address or room id)
// - The canonical string form "<kind>:<subject>" is what storage backends persist
// - Only the first ':' separates kind from subject, so IPv6 subjects round-trip
// - Parsing rejects unknown kinds and empty subjects
package models

import (
	"errors"
	"fmt"
	"strings"
)

// KeyKind identifies the namespace of a limiter key.
type KeyKind string

// Key kinds. Rate-limit kinds hold an event window; the rest hold a single mark.
const (
	KindRoomCreation   KeyKind = "room-creation"
	KindConnections    KeyKind = "connections"
	KindAPI            KeyKind = "api"
	KindCallDuration   KeyKind = "call-duration"
	KindRoomEmptySince KeyKind = "room-empty-since"
	KindRoomActivity   KeyKind = "room-activity"
)

// ErrInvalidKey is returned when a key string cannot be parsed.
var ErrInvalidKey = errors.New("invalid limiter key")

var knownKinds = map[KeyKind]bool{
	KindRoomCreation:   true,
	KindConnections:    true,
	KindAPI:            true,
	KindCallDuration:   true,
	KindRoomEmptySince: true,
	KindRoomActivity:   true,
}

// Valid reports whether k is one of the known kinds.
func (k KeyKind) Valid() bool {
	return knownKinds[k]
}

// IsRateLimit reports whether keys of this kind hold an event window.
func (k KeyKind) IsRateLimit() bool {
	return k == KindRoomCreation || k == KindConnections || k == KindAPI
}

// LimiterKey addresses one entry of limiter state.
type LimiterKey struct {
	Kind    KeyKind
	Subject string
}

// NewKey builds a key and validates it.
func NewKey(kind KeyKind, subject string) (LimiterKey, error) {
	key := LimiterKey{Kind: kind, Subject: subject}
	if err := key.Validate(); err != nil {
		return LimiterKey{}, err
	}
	return key, nil
}

// RoomKey builds a room-scoped key without validation.
func RoomKey(kind KeyKind, roomID string) LimiterKey {
	return LimiterKey{Kind: kind, Subject: roomID}
}

// Validate checks the kind is known and the subject is non-empty.
func (k LimiterKey) Validate() error {
	if !k.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, k.Kind)
	}
	if k.Subject == "" {
		return fmt.Errorf("%w: empty subject for kind %q", ErrInvalidKey, k.Kind)
	}
	return nil
}

// String returns the canonical "<kind>:<subject>" form.
func (k LimiterKey) String() string {
	return string(k.Kind) + ":" + k.Subject
}

// ParseKey parses the canonical string form of a key.
func ParseKey(s string) (LimiterKey, error) {
	kind, subject, ok := strings.Cut(s, ":")
	if !ok {
		return LimiterKey{}, fmt.Errorf("%w: missing separator in %q", ErrInvalidKey, s)
	}
	return NewKey(KeyKind(kind), subject)
}
