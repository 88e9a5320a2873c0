package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger verifies warehouse connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HeartbeatService periodically pings the warehouse so the hosted
// database is never paused for inactivity between runs.
type HeartbeatService struct {
	pinger   Pinger
	interval time.Duration
	logger   *zap.Logger
}

// NewHeartbeatService constructs the heartbeat.
func NewHeartbeatService(pinger Pinger, interval time.Duration, logger *zap.Logger) *HeartbeatService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &HeartbeatService{pinger: pinger, interval: interval, logger: logger}
}

// Run pings on every tick until the context is cancelled. A failed ping
// is logged and retried on the next tick; it never stops the loop.
func (s *HeartbeatService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pinger.Ping(ctx); err != nil {
				s.logger.Warn("warehouse heartbeat failed", zap.Error(err))
				continue
			}
			s.logger.Debug("warehouse heartbeat ok")
		}
	}
}
