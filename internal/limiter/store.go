// Package limiter implements the admission-control state holder.
//
// A Store owns every rate-limit window and room lifecycle mark of one domain.
// All operations on a domain are serialized by the store's mutex and by the
// backend's lock, so the sliding-window read-modify-write never races with
// another check for the same key, even from another process sharing the
// backend. Expiry is computed by the reader; nothing in storage carries a TTL.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"roomgate/internal/models"
	"roomgate/internal/storage"
	"strings"
	"sync"
	"time"
)

const lockPrefix = "domain:"

// Store is the single writer for one limiter domain. Stores of the same domain
// in different processes exclude each other through the storage lock.
type Store struct {
	name    string
	prefix  string
	storage storage.Storage
	now     func() time.Time
	logger  *slog.Logger

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for store events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store for domain name on top of backend. The default
// domain uses the bare key space; any other domain is prefixed "<name>/".
func NewStore(name string, backend storage.Storage, opts ...Option) *Store {
	s := &Store{
		name:    name,
		storage: backend,
		now:     time.Now,
		logger:  slog.Default(),
	}
	if name != models.DefaultDomain {
		s.prefix = name + "/"
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("domain", name)
	return s
}

// Name returns the domain name of the store.
func (s *Store) Name() string {
	return s.name
}

// acquire serializes the caller with every other operation on this domain,
// in this process through mu and across processes through the backend lock.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	unlock, err := s.storage.Lock(ctx, lockPrefix+s.name)
	if err != nil {
		s.mu.Unlock()
		return nil, NewStorageError("failed to lock domain "+s.name, err)
	}
	return func() {
		unlock()
		s.mu.Unlock()
	}, nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Store) storageKey(key models.LimiterKey) string {
	return s.prefix + key.String()
}

// load returns the stored timestamps for key, or nil when absent.
func (s *Store) load(ctx context.Context, key models.LimiterKey) ([]int64, error) {
	value, err := s.storage.Get(ctx, s.storageKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to read %s", key), err)
	}
	return value, nil
}

func (s *Store) save(ctx context.Context, key models.LimiterKey, value []int64) error {
	if err := s.storage.Put(ctx, s.storageKey(key), value); err != nil {
		return NewStorageError(fmt.Sprintf("failed to write %s", key), err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, key models.LimiterKey) error {
	if err := s.storage.Delete(ctx, s.storageKey(key)); err != nil {
		return NewStorageError(fmt.Sprintf("failed to delete %s", key), err)
	}
	return nil
}

// unexpired keeps the timestamps strictly newer than cutoff.
func unexpired(window []int64, cutoff int64) []int64 {
	kept := make([]int64, 0, len(window))
	for _, ts := range window {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

func validateWindow(key models.LimiterKey, limit int, window time.Duration) error {
	if err := key.Validate(); err != nil {
		return NewInvalidArgumentError(err.Error())
	}
	if limit <= 0 {
		return NewInvalidArgumentError(fmt.Sprintf("limit must be positive, got %d", limit))
	}
	if window <= 0 {
		return NewInvalidArgumentError(fmt.Sprintf("window must be positive, got %s", window))
	}
	return nil
}

// CheckRateLimit applies a sliding-window log to key.
func (s *Store) CheckRateLimit(ctx context.Context, key models.LimiterKey, limit int, window time.Duration) (bool, error) {
	if err := validateWindow(key, limit, window); err != nil {
		return false, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	allowed, _, err := s.checkRateLimitLocked(ctx, key, limit, window)
	return allowed, err
}

// checkRateLimitLocked returns the decision and the window length after it.
func (s *Store) checkRateLimitLocked(ctx context.Context, key models.LimiterKey, limit int, window time.Duration) (bool, int, error) {
	now := s.nowMillis()

	stored, err := s.load(ctx, key)
	if err != nil {
		return false, 0, err
	}

	valid := unexpired(stored, now-window.Milliseconds())
	allowed := len(valid) < limit
	if allowed {
		valid = append(valid, now)
	}

	// A denial still persists the filtered window so expired entries don't
	// accumulate, but it never appends.
	if allowed || len(valid) != len(stored) {
		if err := s.save(ctx, key, valid); err != nil {
			return false, 0, err
		}
	}

	return allowed, len(valid), nil
}

// Count returns the number of events under key newer than the window.
func (s *Store) Count(ctx context.Context, key models.LimiterKey, window time.Duration) (int, error) {
	if err := validateWindow(key, 1, window); err != nil {
		return 0, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	stored, err := s.load(ctx, key)
	if err != nil {
		return 0, err
	}
	return len(unexpired(stored, s.nowMillis()-window.Milliseconds())), nil
}

// CheckPolicy checks and counts in one serialized step, so remaining reflects
// exactly this decision.
func (s *Store) CheckPolicy(ctx context.Context, kind models.KeyKind, subject string) (models.RateLimitResult, error) {
	policy, ok := models.PolicyFor(kind)
	if !ok {
		return models.RateLimitResult{}, NewInvalidArgumentError(fmt.Sprintf("no rate-limit policy for kind %q", kind))
	}

	key, err := models.NewKey(kind, subject)
	if err != nil {
		return models.RateLimitResult{}, NewInvalidArgumentError(err.Error())
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return models.RateLimitResult{}, err
	}
	defer release()

	allowed, count, err := s.checkRateLimitLocked(ctx, key, policy.Limit, policy.Window)
	if err != nil {
		return models.RateLimitResult{}, err
	}

	result := models.RateLimitResult{Allowed: allowed}
	if allowed {
		result.Remaining = policy.Limit - count
	}

	if !allowed {
		s.logger.Debug("Rate limit exceeded", "kind", kind, "subject", subject, "limit", policy.Limit)
	}
	return result, nil
}

// CheckCallDuration measures a call from its first observation. The start
// mark is never refreshed by later checks.
func (s *Store) CheckCallDuration(ctx context.Context, roomID string) (models.CallDurationResult, error) {
	if roomID == "" {
		return models.CallDurationResult{}, NewInvalidArgumentError("Room ID required")
	}
	key := models.RoomKey(models.KindCallDuration, roomID)
	maxMillis := models.MaxCallDuration.Milliseconds()

	release, err := s.acquire(ctx)
	if err != nil {
		return models.CallDurationResult{}, err
	}
	defer release()

	now := s.nowMillis()
	stored, err := s.load(ctx, key)
	if err != nil {
		return models.CallDurationResult{}, err
	}

	if len(stored) == 0 {
		if err := s.save(ctx, key, []int64{now}); err != nil {
			return models.CallDurationResult{}, err
		}
		return models.CallDurationResult{
			Allowed:   true,
			Remaining: maxMillis,
			StartTime: &now,
		}, nil
	}

	start := stored[0]
	elapsed := now - start
	return models.CallDurationResult{
		Allowed:   elapsed < maxMillis,
		Remaining: max(0, maxMillis-elapsed),
		Elapsed:   &elapsed,
		StartTime: &start,
	}, nil
}

// MarkRoomEmpty sets the empty-since mark to now, restarting the countdown.
func (s *Store) MarkRoomEmpty(ctx context.Context, roomID string) error {
	if roomID == "" {
		return NewInvalidArgumentError("Room ID required")
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.markRoomEmptyLocked(ctx, roomID)
}

func (s *Store) markRoomEmptyLocked(ctx context.Context, roomID string) error {
	return s.save(ctx, models.RoomKey(models.KindRoomEmptySince, roomID), []int64{s.nowMillis()})
}

// MarkRoomActive clears the empty-since mark and records activity.
func (s *Store) MarkRoomActive(ctx context.Context, roomID string) error {
	if roomID == "" {
		return NewInvalidArgumentError("Room ID required")
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.remove(ctx, models.RoomKey(models.KindRoomEmptySince, roomID)); err != nil {
		return err
	}
	return s.save(ctx, models.RoomKey(models.KindRoomActivity, roomID), []int64{s.nowMillis()})
}

// EndCall stops duration tracking for a room and marks it empty.
func (s *Store) EndCall(ctx context.Context, roomID string) error {
	if roomID == "" {
		return NewInvalidArgumentError("Room ID required")
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.remove(ctx, models.RoomKey(models.KindCallDuration, roomID)); err != nil {
		return err
	}
	return s.markRoomEmptyLocked(ctx, roomID)
}

// ResetRateLimit deletes key. Callers are responsible for access control.
func (s *Store) ResetRateLimit(ctx context.Context, key models.LimiterKey) error {
	if err := key.Validate(); err != nil {
		return NewInvalidArgumentError(err.Error())
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.remove(ctx, key); err != nil {
		return err
	}
	s.logger.Info("Rate limit reset", "key", key.String())
	return nil
}

// CleanupOldRooms enumerates the whole domain and removes:
//   - rooms whose call started more than OldRoomThreshold ago (reported for notification)
//   - rooms empty for more than EmptyRoomThreshold
//
// Each room appears at most once in the result.
func (s *Store) CleanupOldRooms(ctx context.Context) (models.CleanupResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return models.CleanupResult{}, err
	}
	defer release()

	entries, err := s.storage.List(ctx, s.prefix)
	if err != nil {
		return models.CleanupResult{}, NewStorageError("failed to list keys", err)
	}

	now := s.nowMillis()
	oldCutoff := models.OldRoomThreshold.Milliseconds()
	emptyCutoff := models.EmptyRoomThreshold.Milliseconds()

	result := models.CleanupResult{Rooms: []string{}, RoomsToNotify: []string{}}
	cleaned := make(map[string]bool)

	// Entries are sorted, so every call-duration key is seen before any
	// room-empty-since key and force-ended rooms win the notification.
	for _, entry := range entries {
		key, ok := s.parseStorageKey(entry.Key)
		if !ok || len(entry.Value) == 0 || cleaned[key.Subject] {
			continue
		}
		mark := entry.Value[0]

		switch key.Kind {
		case models.KindCallDuration:
			if now-mark <= oldCutoff {
				continue
			}
			if err := s.removeRoomLocked(ctx, key.Subject); err != nil {
				return result, err
			}
			cleaned[key.Subject] = true
			result.Rooms = append(result.Rooms, key.Subject)
			result.RoomsToNotify = append(result.RoomsToNotify, key.Subject)

		case models.KindRoomEmptySince:
			if now-mark <= emptyCutoff {
				continue
			}
			if err := s.removeRoomLocked(ctx, key.Subject); err != nil {
				return result, err
			}
			cleaned[key.Subject] = true
			result.Rooms = append(result.Rooms, key.Subject)
		}
	}

	result.Cleaned = len(result.Rooms)
	if result.Cleaned > 0 {
		s.logger.Info("Cleaned up rooms",
			"cleaned", result.Cleaned,
			"notify", len(result.RoomsToNotify))
	}
	return result, nil
}

// parseStorageKey strips the domain prefix and parses the remainder. Keys of
// other domains and unparseable keys are reported as not ok.
func (s *Store) parseStorageKey(raw string) (models.LimiterKey, bool) {
	rest, ok := strings.CutPrefix(raw, s.prefix)
	if !ok {
		return models.LimiterKey{}, false
	}
	key, err := models.ParseKey(rest)
	if err != nil {
		return models.LimiterKey{}, false
	}
	return key, true
}

func (s *Store) removeRoomLocked(ctx context.Context, roomID string) error {
	for _, kind := range []models.KeyKind{
		models.KindCallDuration,
		models.KindRoomActivity,
		models.KindRoomEmptySince,
	} {
		if err := s.remove(ctx, models.RoomKey(kind, roomID)); err != nil {
			return err
		}
	}
	return nil
}
