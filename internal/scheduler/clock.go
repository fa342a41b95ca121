package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Clock triggers active tasks on their cron schedule.
type Clock struct {
	sched  *Scheduler
	c      *cron.Cron
	logger *zap.Logger
}

// NewClock builds a cron clock over every active task registered so far.
func NewClock(s *Scheduler) (*Clock, error) {
	c := cron.New(cron.WithLocation(s.cfg.Location))
	clk := &Clock{sched: s, c: c, logger: s.logger.Named("clock")}
	for _, task := range s.Tasks() {
		if !task.Active {
			continue
		}
		id := task.ID
		if _, err := c.AddFunc(task.Cron, func() { clk.fire(id) }); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", id, err)
		}
	}
	return clk, nil
}

func (c *Clock) fire(taskID string) {
	runID, err := c.sched.Trigger(taskID)
	switch {
	case err == nil:
		c.logger.Info("scheduled run queued", zap.String("task_id", taskID), zap.String("run_id", runID))
	case errors.Is(err, ErrTaskRunning):
		c.logger.Info("scheduled run skipped, previous run still active", zap.String("task_id", taskID))
	default:
		c.logger.Warn("scheduled run rejected", zap.String("task_id", taskID), zap.Error(err))
	}
}

// Run starts the clock and blocks until ctx finishes.
func (c *Clock) Run(ctx context.Context) {
	c.c.Start()
	c.logger.Info("cron clock started", zap.Int("entries", len(c.c.Entries())))
	<-ctx.Done()
	<-c.c.Stop().Done()
}
