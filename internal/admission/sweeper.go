package admission

import (
	"context"
	"log/slog"
	"roomgate/internal/models"
	"time"
)

// Notifier tells the room layer which calls were force-ended by cleanup.
type Notifier interface {
	NotifyRoomsEnded(ctx context.Context, rooms []string) error
}

// LogNotifier logs force-ended rooms.
type LogNotifier struct{}

func (LogNotifier) NotifyRoomsEnded(ctx context.Context, rooms []string) error {
	for _, room := range rooms {
		slog.Info("Call force-ended by cleanup", "room_id", room)
	}
	return nil
}

// Sweeper runs CleanupOldRooms on a fixed interval.
type Sweeper struct {
	checker  Checker
	interval time.Duration
	notifier Notifier
}

// NewSweeper creates a sweeper. A nil notifier logs.
func NewSweeper(checker Checker, interval time.Duration, notifier Notifier) *Sweeper {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Sweeper{
		checker:  checker,
		interval: interval,
		notifier: notifier,
	}
}

// Sweep runs a single cleanup pass and notifies force-ended rooms.
func (s *Sweeper) Sweep(ctx context.Context) (models.CleanupResult, error) {
	result, err := s.checker.CleanupOldRooms(ctx)
	if err != nil {
		return result, err
	}

	if len(result.RoomsToNotify) > 0 {
		if err := s.notifier.NotifyRoomsEnded(ctx, result.RoomsToNotify); err != nil {
			slog.Error("Failed to notify ended rooms", "rooms", result.RoomsToNotify, "error", err)
		}
	}
	return result, nil
}

// Run sweeps until ctx is cancelled. A failed pass is logged and retried on
// the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Room cleanup sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("Room cleanup sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("Room cleanup failed", "error", err)
			}
		}
	}
}
