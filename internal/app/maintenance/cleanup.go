package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/credvault/credvault/internal/services"
	"github.com/credvault/credvault/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultUnboundHandleTTL   = 24 * time.Hour
	defaultAuditSpec          = "@daily"
	defaultHandleSpec         = "@hourly"
)

// HandlePruner removes staged ciphertext entries never bound to a stored
// record. The encryption gateway implements it.
type HandlePruner interface {
	PruneUnbound(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner coordinates background maintenance: pruning stale audit logs and
// removing ciphertext handles that were encrypted but never attached to a
// credential or transcript.
type Cleaner struct {
	audit     *services.AuditService
	pruner    HandlePruner
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int
	handleTTL time.Duration

	auditSchedule  string
	handleSchedule string
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

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithUnboundHandleTTL adjusts how long never-bound ciphertext entries survive.
func WithUnboundHandleTTL(ttl time.Duration) Option {
	return func(cleaner *Cleaner) {
		if ttl > 0 {
			cleaner.handleTTL = ttl
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithHandleSchedule overrides the cron specification for unbound handle pruning.
func WithHandleSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.handleSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(audit *services.AuditService, pruner HandlePruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		audit:          audit,
		pruner:         pruner,
		now:            time.Now,
		retention:      defaultAuditRetentionDays,
		handleTTL:      defaultUnboundHandleTTL,
		auditSchedule:  defaultAuditSpec,
		handleSchedule: defaultHandleSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if c.audit == nil && c.pruner == nil {
		return nil
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			ctx := context.Background()
			if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.pruner != nil && c.handleTTL > 0 {
		if _, err := c.cron.AddFunc(c.handleSchedule, func() {
			ctx := context.Background()
			cutoff := c.now().Add(-c.handleTTL)
			if _, err := c.pruner.PruneUnbound(ctx, cutoff); err != nil {
				c.log.Warn("unbound handle pruning failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.pruner != nil && c.handleTTL > 0 {
		if _, err := c.pruner.PruneUnbound(ctx, c.now().Add(-c.handleTTL)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
