package service

import (
	"context"
	"time"

	"github.com/heylo/heylo-auth/pkg/logger"
)

// ExpiredOTPDeleter is the slice of the OTP repository the sweeper needs.
type ExpiredOTPDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper purges expired OTP records on a fixed interval. It is owned
// by the process entry point and stops when its context is canceled;
// a failed sweep never prevents the next one.
type Sweeper struct {
	repo     ExpiredOTPDeleter
	interval time.Duration
}

func NewSweeper(repo ExpiredOTPDeleter, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{repo: repo, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Starting expired OTP sweeper", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping expired OTP sweeper")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		logger.Error("Expired OTP sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("Expired OTP codes removed", "deleted", deleted)
	}
}
