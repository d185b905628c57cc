// Package ratelimit shields the coordinator's own HTTP surface from request
// floods. It is a coarse per-caller token bucket in front of every endpoint and
// is independent of the admission policies the limiter store enforces.
package ratelimit

import "time"

// Limiter defines the flood shield contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow reports whether a request identified by key may proceed, along
	// with the bucket state used for response headers.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains bucket state for populating response headers.
type Info struct {
	Limit      int           // Requests per minute
	Remaining  int           // Whole tokens left in the bucket
	RetryAfter time.Duration // Delay until the next token; zero when allowed
}
