// Package sweeper expires sessions whose age has passed the configured
// time-to-live. It runs on a cron schedule and can also be invoked
// directly.
package sweeper

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calebmoss/invoiceflow/session"
)

// Sweeper deletes sessions older than the TTL.
type Sweeper struct {
	store  *session.Store
	ttl    time.Duration
	logger *slog.Logger
	cron   *cron.Cron
	now    func() time.Time
}

// Option adjusts sweeper construction.
type Option func(*Sweeper)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(store *session.Store, ttl time.Duration, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		store:  store,
		ttl:    ttl,
		logger: logger,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the sweep on the given cron schedule and starts the
// scheduler.
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(); err != nil {
			s.logger.Error("session sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("session sweeper started", "schedule", schedule, "ttl", s.ttl)
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep deletes every session older than the TTL and reports how many
// were removed.
func (s *Sweeper) Sweep() (int, error) {
	ids, err := s.store.List()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.ttl)
	deleted := 0
	for _, id := range ids {
		created, err := s.store.CreatedAt(id)
		if err != nil {
			s.logger.Warn("skipping session with unknown age", "session_id", id, "error", err)
			continue
		}
		if created.After(cutoff) {
			continue
		}
		if err := s.store.Delete(id); err != nil {
			s.logger.Warn("failed to delete expired session", "session_id", id, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("expired sessions removed", "count", deleted)
	}
	return deleted, nil
}
