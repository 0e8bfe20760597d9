package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the token sweep hourly.
const DefaultSweepSchedule = "0 * * * *"

// Sweeper periodically evicts expired tokens from a Cache using a cron
// schedule. The cache works correctly without it; the sweeper only keeps
// long-running processes from accumulating dead entries.
type Sweeper struct {
	cache    *Cache
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper for the cache. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(cache *Cache, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		cache:    cache,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "security.credentials.sweeper"),
	}
}

// Start begins scheduled sweeping and stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule token sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("token sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Sweeper) sweep() {
	if evicted := s.cache.Sweep(); evicted > 0 {
		s.logger.Info("evicted expired tokens", "count", evicted)
	}
}

// Stop halts scheduled sweeping and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Debug("token sweeper stopped")
}
