// internal/motor/motor.go
package motor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/munozp/solarsim/internal/busmem"
	"github.com/munozp/solarsim/internal/mathx"
	"github.com/munozp/solarsim/internal/model"
	"github.com/munozp/solarsim/internal/sim"
	"github.com/munozp/solarsim/internal/status"
	"github.com/munozp/solarsim/internal/timex"
)

// ErrBusy rejects a command while a move is in progress.
var ErrBusy = errors.New("motor: move in progress")

// Controller drives the panel angle toward a commanded target, one run per
// command. State machine: Idle -> Moving -> Idle. At most one run is ever
// active; the moving flag is claimed by compare-and-swap before a run
// starts.
type Controller struct {
	state       *sim.State
	bus         *busmem.Adapter
	speedFactor float64

	moving atomic.Bool

	mu   sync.Mutex
	done chan struct{} // closed when the current run finishes
}

// New creates an idle controller.
func New(state *sim.State, bus *busmem.Adapter, speedFactor float64) *Controller {
	if speedFactor <= 0 {
		speedFactor = 1
	}
	return &Controller{state: state, bus: bus, speedFactor: speedFactor}
}

// Moving reports whether a run is in progress.
func (c *Controller) Moving() bool { return c.moving.Load() }

// Wait blocks until the current run (if any) finishes. Reports false when
// ctx is cancelled first.
func (c *Controller) Wait(ctx context.Context) bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start begins one run toward target milli-degrees. It returns ErrBusy if a
// run is already active. The motor speed is latched from the active test
// configuration at start; changing configuration mid-move has no effect on
// that move.
func (c *Controller) Start(ctx context.Context, targetMdeg int32) error {
	if !c.moving.CompareAndSwap(false, true) {
		return ErrBusy
	}

	speed := c.state.TestConfig().MotorSpeedMdegSec
	if speed <= 0 {
		c.moving.Store(false)
		return errors.New("motor: speed must be > 0")
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, targetMdeg, speed, done)
	return nil
}

func (c *Controller) run(ctx context.Context, target int32, speed int, done chan struct{}) {
	defer func() {
		// The moving bit must never stay set after the run ends, aborted
		// or not; a cancelled move may leave the angle partial, but new
		// commands have to be accepted.
		w := c.state.ClearFlags(status.MotorMoving)
		c.bus.Publish(busmem.RegStatus, w.Word())
		c.state.Notify()
		c.moving.Store(false)
		close(done)
	}()

	w := c.state.SetFlags(status.MotorMoving)
	c.bus.Publish(busmem.RegStatus, w.Word())
	c.state.Notify()

	cur := c.state.PanelAngle()
	dist := target - cur
	if dist == 0 {
		return
	}
	dir := int32(1)
	if dist < 0 {
		dir = -1
	}
	remaining := mathx.Abs(dist)

	for remaining > 0 {
		start := time.Now()

		step := int32(model.MotorStepMdeg)
		if remaining < step {
			step = remaining // final partial step
		}
		remaining -= step
		cur += dir * step

		// Per-step sleep in ms, rounded up: step * 1000 / speed. A
		// partial final step sleeps only its own share.
		stepSleep := time.Duration((int(step)*1000+speed-1)/speed) * time.Millisecond

		c.state.SetPanelAngle(cur)
		c.bus.Publish(busmem.RegAngle, cur)
		c.state.Notify()

		if !timex.SleepCorrected(ctx, stepSleep, time.Since(start), c.speedFactor) {
			return // aborted: remaining steps dropped
		}
	}
}
