package auth

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically deletes expired refresh records. Expired tokens are
// already rejected on use; this only keeps the table small.
type Sweeper struct {
	service  *Service
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(service *Service, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{service: service, interval: interval, log: log}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.service.DeleteExpiredSessions(ctx)
	if err != nil {
		s.log.Error("refresh token sweep failed", "err", err)
		return 0, err
	}
	s.log.Info("refresh token sweep", "deleted", n, "took", time.Since(start))
	return n, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("refresh token sweeper started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		case <-ctx.Done():
			s.log.Info("refresh token sweeper stopped")
			return
		}
	}
}
