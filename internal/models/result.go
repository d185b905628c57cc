package models

// RateLimitResult is the answer to a sliding-window check.
type RateLimitResult struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// CallDurationResult is the answer to a call-duration check. Durations and
// timestamps are in milliseconds. Elapsed is omitted on the first observation.
type CallDurationResult struct {
	Allowed   bool   `json:"allowed"`
	Remaining int64  `json:"remaining"`
	Elapsed   *int64 `json:"elapsed,omitempty"`
	StartTime *int64 `json:"startTime,omitempty"`
}

// CleanupResult lists the rooms removed by a cleanup pass. RoomsToNotify is the
// subset whose call was force-ended and still may have participants.
type CleanupResult struct {
	Cleaned       int      `json:"cleaned"`
	Rooms         []string `json:"rooms"`
	RoomsToNotify []string `json:"roomsToNotify"`
}

// RoomRequest is the body of the mutating room operations.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// ResetRequest is the body of the administrative reset operation.
type ResetRequest struct {
	Key string `json:"key"`
}
