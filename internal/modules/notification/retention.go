package notification

import (
	"context"
	"log/slog"
	"time"
)

// Janitor purges old notifications on a fixed interval.
type Janitor struct {
	service  *Service
	maxAge   time.Duration
	interval time.Duration
	log      *slog.Logger
}

func NewJanitor(service *Service, maxAge, interval time.Duration, log *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{service: service, maxAge: maxAge, interval: interval, log: log}
}

// RunOnce purges once. A non-positive maxAge keeps everything.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if j.maxAge <= 0 {
		return 0, nil
	}
	n, err := j.service.Purge(ctx, j.maxAge)
	if err != nil {
		j.log.Error("notification purge failed", "err", err)
		return 0, err
	}
	if n > 0 {
		j.log.Info("notification purge", "deleted", n, "max_age", j.maxAge)
	}
	return n, nil
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}
