package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
)

// Sweeper is an in-memory structure that drops stale entries on demand,
// such as the replay cache or a rate limiter.
type Sweeper interface {
	Sweep() int
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func() int

func (f SweeperFunc) Sweep() int { return f() }

// HousekeepingService periodically deletes spent tickets and expired
// refresh tokens, and sweeps registered in-memory caches.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Sweepers []Sweeper

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to one hour.
func NewHousekeepingService(s store.Store, logger *slog.Logger, interval time.Duration, sweepers ...Sweeper) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    s,
		Logger:   logger,
		Interval: interval,
		Sweepers: sweepers,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// CleanupResult counts what a cleanup pass removed.
type CleanupResult struct {
	Tickets       int64
	RefreshTokens int64
	CacheEntries  int
}

// Cleanup performs one pass. Each step is independent; a failure in one is
// logged and does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) CleanupResult {
	var res CleanupResult
	now := time.Now()

	n, err := s.Store.Tickets().DeleteExpiredTickets(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired tickets", "error", err)
	} else {
		res.Tickets = n
	}

	n, err = s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	} else {
		res.RefreshTokens = n
	}

	for _, sw := range s.Sweepers {
		res.CacheEntries += sw.Sweep()
	}

	s.Logger.Info("housekeeping cleanup completed",
		"tickets", res.Tickets,
		"refresh_tokens", res.RefreshTokens,
		"cache_entries", res.CacheEntries,
	)
	return res
}
