package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xceleratortech/communitiesx/pkg/observability"
)

// RetentionStore is the pruning surface of the notification store.
type RetentionStore interface {
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStaleSubscriptions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically prunes read notifications past their retention
// window and push subscriptions nothing has delivered to in a long time.
type Sweeper struct {
	store          RetentionStore
	retention      time.Duration
	staleThreshold time.Duration
	logger         *observability.Logger
	cron           *cron.Cron
}

// NewSweeper creates a retention sweeper. retentionDays of zero disables
// notification pruning; staleThreshold of zero disables subscription
// pruning.
func NewSweeper(store RetentionStore, retentionDays int, staleThreshold time.Duration, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		store:          store,
		retention:      time.Duration(retentionDays) * 24 * time.Hour,
		staleThreshold: staleThreshold,
		logger:         logger,
	}
}

// Start schedules the sweep with the given cron expression.
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one pruning pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	defer observability.RecoverPanic(s.logger, "retention-sweeper")

	now := time.Now()

	if s.retention > 0 {
		pruned, err := s.store.DeleteReadNotificationsBefore(ctx, now.Add(-s.retention))
		if err != nil {
			s.logger.WithError(err).Error("failed to prune read notifications")
		} else if pruned > 0 {
			s.logger.WithField("pruned", pruned).Info("pruned read notifications")
		}
	}

	if s.staleThreshold > 0 {
		pruned, err := s.store.DeleteStaleSubscriptions(ctx, now.Add(-s.staleThreshold))
		if err != nil {
			s.logger.WithError(err).Error("failed to prune stale subscriptions")
		} else if pruned > 0 {
			s.logger.WithField("pruned", pruned).Info("pruned stale push subscriptions")
		}
	}
}
