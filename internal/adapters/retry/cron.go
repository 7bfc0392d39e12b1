// Package retry schedules future re-scans of the message store.
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"github.com/bft-labs/mmsgate/internal/ports"
)

// DefaultSchedule re-scans every ten minutes.
const DefaultSchedule = "@every 10m"

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron arms one-shot retries at the next time of a cron schedule.
// Arming while armed keeps the earlier deadline.
type Cron struct {
	schedule cron.Schedule
	expr     string
	clock    clock.Clock
	logger   ports.Logger

	mu     sync.Mutex
	onFire func(ctx context.Context)
	timer  *clock.Timer
	due    time.Time
	ctx    context.Context
}

// NewCron parses the schedule expression and creates an unarmed scheduler.
func NewCron(expr string, clk clock.Clock, logger ports.Logger) (*Cron, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse retry schedule %q: %w", expr, err)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Cron{schedule: sched, expr: expr, clock: clk, logger: logger}, nil
}

// OnFire sets the callback run when the retry comes due.
func (c *Cron) OnFire(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFire = fn
}

// Arm schedules a retry at the schedule's next activation.
func (c *Cron) Arm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	next := c.schedule.Next(now)
	if next.IsZero() {
		return fmt.Errorf("retry schedule %q has no future activation", c.expr)
	}
	if c.timer != nil && !c.due.After(next) {
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
	}

	c.due = next
	c.ctx = context.WithoutCancel(ctx)
	c.timer = c.clock.AfterFunc(next.Sub(now), c.fire)

	c.logger.Debug("retry armed",
		ports.String("schedule", c.expr),
		ports.Duration("in", next.Sub(now)),
	)
	return nil
}

// Due returns the armed deadline, or the zero time when unarmed.
func (c *Cron) Due() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.due
}

// Stop cancels any armed retry.
func (c *Cron) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = nil
	c.due = time.Time{}
}

func (c *Cron) fire() {
	c.mu.Lock()
	fn, ctx := c.onFire, c.ctx
	c.timer = nil
	c.due = time.Time{}
	c.mu.Unlock()

	c.logger.Info("retry due, rescanning pending work")
	if fn != nil {
		fn(ctx)
	}
}
