package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

type housekeeping interface {
	CleanupCompletedOlderThan(ctx context.Context, days int) (int64, error)
	CancelOlderThan(ctx context.Context, days int) (int64, error)
}

// Housekeeper runs retention on a cron schedule: finished jobs past the
// retention window are deleted and, when enabled, abandoned ones cancelled.
type Housekeeper struct {
	bulk   housekeeping
	cfg    environments.MaintenanceConfig
	parser cron.Parser

	mu sync.Mutex
	c  *cron.Cron
}

func NewHousekeeper(bulk housekeeping, cfg environments.MaintenanceConfig) *Housekeeper {
	return &Housekeeper{
		bulk:   bulk,
		cfg:    cfg,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers the cleanup job. An empty CleanupCron disables it.
func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.c != nil || h.cfg.CleanupCron == "" {
		return nil
	}

	schedule, err := h.parser.Parse(h.cfg.CleanupCron)
	if err != nil {
		return fmt.Errorf("invalid cleanup cron %q: %w", h.cfg.CleanupCron, err)
	}

	h.c = cron.New(cron.WithParser(h.parser), cron.WithLocation(time.UTC))
	h.c.Schedule(schedule, cron.FuncJob(func() { h.RunOnce(ctx) }))
	h.c.Start()

	logger.Infof("Housekeeping scheduled (%s, retention %d days, auto-cancel %d days)",
		h.cfg.CleanupCron, h.cfg.RetentionDays, h.cfg.AutoCancelDays)
	return nil
}

// Stop waits for a running cleanup to return.
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.c == nil {
		return
	}
	<-h.c.Stop().Done()
	h.c = nil
}

func (h *Housekeeper) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if h.cfg.AutoCancelDays > 0 {
		if n, err := h.bulk.CancelOlderThan(ctx, h.cfg.AutoCancelDays); err != nil {
			logger.Errorf("Housekeeping auto-cancel failed: %v", err)
		} else if n > 0 {
			logger.Infof("Housekeeping cancelled %d abandoned broadcasts", n)
		}
	}

	if h.cfg.RetentionDays > 0 {
		if n, err := h.bulk.CleanupCompletedOlderThan(ctx, h.cfg.RetentionDays); err != nil {
			logger.Errorf("Housekeeping cleanup failed: %v", err)
		} else if n > 0 {
			logger.Infof("Housekeeping deleted %d finished broadcasts", n)
		}
	}
}
