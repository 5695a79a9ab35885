package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/universalnft/marketplace-indexer/internal/adapter"
	"github.com/universalnft/marketplace-indexer/internal/logger"
)

const (
	defaultInterval      = 60 * time.Second
	defaultRetryInterval = 20 * time.Second
)

// Pass is one unit of periodic work.
type Pass interface {
	Run(ctx context.Context) error
}

// Scheduler runs the reconciliation and import passes back to back,
// forever: a full interval after success, a short one after failure, so
// transient upstream outages degrade to faster retries rather than silence.
type Scheduler struct {
	passes        []Pass
	interval      time.Duration
	retryInterval time.Duration
	clock         adapter.Clock
	log           *zap.Logger
}

// NewScheduler creates a scheduler over the given passes, run in order
func NewScheduler(passes []Pass, interval, retryInterval time.Duration, clock adapter.Clock) *Scheduler {
	if interval == 0 {
		interval = defaultInterval
	}
	if retryInterval == 0 {
		retryInterval = defaultRetryInterval
	}
	return &Scheduler{
		passes:        passes,
		interval:      interval,
		retryInterval: retryInterval,
		clock:         clock,
		log:           logger.Default(),
	}
}

// Run loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		delay := s.interval
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error("sync pass failed, retrying on short interval", zap.Error(err))
			delay = s.retryInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	for _, pass := range s.passes {
		if err := pass.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
