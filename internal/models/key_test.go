package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    KeyKind
		subject string
		wantErr bool
	}{
		{"room creation", "room-creation:1.2.3.4", KindRoomCreation, "1.2.3.4", false},
		{"connections", "connections:10.0.0.1", KindConnections, "10.0.0.1", false},
		{"api", "api:unknown", KindAPI, "unknown", false},
		{"call duration", "call-duration:room-42", KindCallDuration, "room-42", false},
		{"empty since", "room-empty-since:abc", KindRoomEmptySince, "abc", false},
		{"activity", "room-activity:abc", KindRoomActivity, "abc", false},
		{"ipv6 subject", "api:2001:db8::1", KindAPI, "2001:db8::1", false},
		{"unknown kind", "bogus:1.2.3.4", "", "", true},
		{"no separator", "api", "", "", true},
		{"empty subject", "api:", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, key.Kind)
			assert.Equal(t, tt.subject, key.Subject)
			assert.Equal(t, tt.input, key.String())
		})
	}
}

func TestNewKey(t *testing.T) {
	key, err := NewKey(KindConnections, "5.5.5.5")
	require.NoError(t, err)
	assert.Equal(t, "connections:5.5.5.5", key.String())

	_, err = NewKey(KindConnections, "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewKey("nope", "x")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyKind_IsRateLimit(t *testing.T) {
	assert.True(t, KindRoomCreation.IsRateLimit())
	assert.True(t, KindConnections.IsRateLimit())
	assert.True(t, KindAPI.IsRateLimit())
	assert.False(t, KindCallDuration.IsRateLimit())
	assert.False(t, KindRoomEmptySince.IsRateLimit())
	assert.False(t, KindRoomActivity.IsRateLimit())
}

func TestRoomKey(t *testing.T) {
	assert.Equal(t, "room-activity:r1", RoomKey(KindRoomActivity, "r1").String())
}

func TestPolicyFor(t *testing.T) {
	tests := []struct {
		kind   KeyKind
		limit  int
		window string
	}{
		{KindRoomCreation, 5, "1h0m0s"},
		{KindConnections, 20, "10m0s"},
		{KindAPI, 100, "1m0s"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			policy, ok := PolicyFor(tt.kind)
			require.True(t, ok)
			assert.Equal(t, tt.kind, policy.Kind)
			assert.Equal(t, tt.limit, policy.Limit)
			assert.Equal(t, tt.window, policy.Window.String())
		})
	}

	_, ok := PolicyFor(KindCallDuration)
	assert.False(t, ok)
}

func TestPolicyFor_ReturnsFreshValues(t *testing.T) {
	policy, ok := PolicyFor(KindRoomCreation)
	require.True(t, ok)
	policy.Limit = 1_000_000
	policy.Window = 0

	again, ok := PolicyFor(KindRoomCreation)
	require.True(t, ok)
	assert.Equal(t, RoomCreationLimit, again.Limit)
	assert.Equal(t, RoomCreationWindow, again.Window)
}

func TestLifecycleThresholds(t *testing.T) {
	assert.Equal(t, int64(3600000), MaxCallDuration.Milliseconds())
	assert.Equal(t, int64(7200000), OldRoomThreshold.Milliseconds())
	assert.Equal(t, int64(1800000), EmptyRoomThreshold.Milliseconds())
}
