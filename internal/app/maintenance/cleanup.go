package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/database"
	"github.com/consultportal/portal/pkg/logger"
)

const (
	defaultRetentionDays = 30
	defaultSchedule      = "@daily"
)

// Sweeper removes read notifications older than a number of days across all users.
type Sweeper interface {
	CleanupAllOlderThan(ctx context.Context, daysOld int) (int64, error)
}

// Cleaner runs the notification retention sweep on a cron schedule and
// records when the last sweep completed.
type Cleaner struct {
	db        *gorm.DB
	sweeper   Sweeper
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int
	schedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used to stamp completed sweeps.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetentionDays adjusts how long read notifications are kept.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSchedule overrides the cron expression of the sweep.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. db is used to record sweep completion and
// may be nil.
func NewCleaner(db *gorm.DB, sweeper Sweeper, opts ...Option) (*Cleaner, error) {
	if sweeper == nil {
		return nil, errors.New("maintenance: sweeper is required")
	}
	cleaner := &Cleaner{
		db:        db,
		sweeper:   sweeper,
		now:       time.Now,
		retention: defaultRetentionDays,
		schedule:  defaultSchedule,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner, nil
}

// Start registers the sweep with the scheduler and launches it.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("notification cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}

	c.cron.Start()
	c.log.Info("notification cleanup scheduled",
		zap.String("schedule", c.schedule),
		zap.Int("retention_days", c.retention),
	)
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce performs a single sweep and records its completion time. Failures
// from both steps are reported together.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	removed, err := c.sweeper.CleanupAllOlderThan(ctx, c.retention)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if removed > 0 {
		c.log.Info("notification cleanup removed rows", zap.Int64("removed", removed))
	}

	if c.db != nil {
		if err := database.RecordLastCleanup(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
