// Package idle drives the assistant when nobody is talking to it: energy drains while it
// is active, recovers while it rests, and after a quiet spell the council is asked what
// to do next.
package idle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// #region options

// Options tunes the idle loop.
type Options struct {
	Timeout  time.Duration // quiet time before idle reasoning runs
	Tick     time.Duration
	Drain    float64 // energy lost per tick while not resting
	Recovery float64 // energy gained per tick while resting
}

// DefaultOptions returns the stock idle settings.
func DefaultOptions() Options {
	return Options{Timeout: 2 * time.Minute, Tick: 10 * time.Second, Drain: 0.002, Recovery: 0.02}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Tick <= 0 {
		o.Tick = d.Tick
	}
	if o.Drain < 0 {
		o.Drain = 0
	}
	if o.Recovery < 0 {
		o.Recovery = 0
	}
	return o
}

// #endregion options

// #region controller

// Runner performs one round of idle reasoning for an assistant.
type Runner interface {
	RunIdle(ctx context.Context, assistantID string, idleFor time.Duration) (council.Decision, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, assistantID string, idleFor time.Duration) (council.Decision, error)

func (f RunnerFunc) RunIdle(ctx context.Context, assistantID string, idleFor time.Duration) (council.Decision, error) {
	return f(ctx, assistantID, idleFor)
}

// EnergyStore is the slice of the assistant store the loop needs.
type EnergyStore interface {
	Get(id string) (state.Assistant, error)
	SetEnergy(id string, energy float64) error
	SetAction(id, action string) error
}

// Controller tracks user activity for one assistant.
type Controller struct {
	assistantID string
	runner      Runner
	store       EnergyStore
	opts        Options
	log         *zap.Logger
	now         func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
}

// New creates a Controller. The assistant counts as active from now.
func New(assistantID string, runner Runner, store EnergyStore, opts Options, log *zap.Logger) *Controller {
	c := &Controller{
		assistantID: assistantID,
		runner:      runner,
		store:       store,
		opts:        opts.withDefaults(),
		log:         logging.OrNop(log).Named("idle"),
		now:         time.Now,
	}
	c.lastActivity = c.now()
	return c
}

// Touch records user activity.
func (c *Controller) Touch() {
	c.mu.Lock()
	c.lastActivity = c.now()
	c.mu.Unlock()
}

// IdleFor reports how long the assistant has gone without activity.
func (c *Controller) IdleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastActivity)
}

// #endregion controller

// #region loop

// Run ticks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	t := time.NewTicker(c.opts.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			c.Tick(ctx)
		}
	}
}

// Tick adjusts energy and, once the timeout has passed, runs idle reasoning. The quiet
// period restarts after each round so reasoning does not fire every tick.
func (c *Controller) Tick(ctx context.Context) {
	a, err := c.store.Get(c.assistantID)
	if err != nil {
		c.log.Debug("assistant unavailable", zap.String("assistant", c.assistantID), zap.Error(err))
		return
	}
	c.adjustEnergy(a)

	idleFor := c.IdleFor()
	if idleFor < c.opts.Timeout || a.IsMoving() {
		return
	}
	d, err := c.runner.RunIdle(ctx, c.assistantID, idleFor)
	if err != nil {
		c.log.Warn("idle reasoning failed", zap.Error(err))
	} else {
		c.log.Info("idle decision",
			zap.String("assistant", c.assistantID),
			zap.Duration("idle_for", idleFor),
			zap.String("mood", d.Mood),
			zap.Int("actions", len(d.Actions)))
	}
	c.Touch()
}

func (c *Controller) adjustEnergy(a state.Assistant) {
	if a.CurrentAction == state.ActionResting {
		e := a.Energy + c.opts.Recovery
		if err := c.store.SetEnergy(a.ID, e); err != nil {
			c.log.Warn("set energy failed", zap.Error(err))
			return
		}
		if e >= 1 {
			if err := c.store.SetAction(a.ID, state.ActionIdle); err != nil {
				c.log.Warn("wake up failed", zap.Error(err))
			}
		}
		return
	}
	if c.opts.Drain > 0 {
		if err := c.store.SetEnergy(a.ID, a.Energy-c.opts.Drain); err != nil {
			c.log.Warn("set energy failed", zap.Error(err))
		}
	}
}

// #endregion loop
