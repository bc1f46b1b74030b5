// internal/power/power.go
package power

import (
	"context"
	"errors"
	"time"

	"github.com/munozp/solarsim/internal/busmem"
	"github.com/munozp/solarsim/internal/model"
	"github.com/munozp/solarsim/internal/sim"
	"github.com/munozp/solarsim/internal/timex"
)

// Config is the minimal runtime config the battery loop needs.
type Config struct {
	// Period is the wall-clock tick period.
	Period time.Duration

	// SpeedFactor scales simulated elapsed time per tick and compresses
	// the inter-tick sleep.
	SpeedFactor float64

	// Curve selects the sensor response; nil means the logarithmic default.
	Curve model.Curve
}

// Loop advances the physical model on a fixed period and publishes the
// results to the bus. It is the only writer of the power, battery and
// sensor registers.
type Loop struct {
	cfg   Config
	state *sim.State
	bus   *busmem.Adapter
}

// New creates a battery/power loop with immutable config.
func New(cfg Config, state *sim.State, bus *busmem.Adapter) (*Loop, error) {
	if cfg.Period <= 0 {
		return nil, errors.New("power: period must be > 0")
	}
	if cfg.SpeedFactor <= 0 {
		return nil, errors.New("power: speed factor must be > 0")
	}
	if state == nil || bus == nil {
		return nil, errors.New("power: state and bus required")
	}
	return &Loop{cfg: cfg, state: state, bus: bus}, nil
}

// Tick performs exactly one update for an elapsed simulated time dt.
// Publishes are issued in the fixed order power, battery, sensors; readers
// on the host side must tolerate transient partial updates between them.
func (l *Loop) Tick(dt time.Duration) {
	raw := l.state.SunPosition()
	angle := l.state.PanelAngle()
	maxPower := float64(l.state.TestConfig().MaxPowerMw)

	dark := model.IsDark(raw)
	incidence := model.Incidence(raw, angle)
	powerMw := model.OutputPower(incidence, maxPower)

	var battery float64
	if v, ok := l.state.TakeOverride(); ok {
		// An armed override wins the tick outright; no charging on top.
		battery = model.ClampBattery(v)
	} else {
		delta := model.ChargeDelta(powerMw, float64(dt.Milliseconds()), l.cfg.SpeedFactor)
		battery = model.ClampBattery(l.state.Battery() + delta)
	}

	l.state.SetOutputPower(powerMw)
	l.state.SetBattery(battery)

	l.bus.Publish(busmem.RegPower, int32(powerMw))
	l.bus.Publish(busmem.RegBattery, int32(battery))

	left, right := model.Sensors(dark, incidence, l.cfg.Curve)
	word := model.PackSensors(left, right)
	l.state.SetSensorWord(word)
	l.bus.Publish(busmem.RegSensors, word)

	l.state.Notify()
}

// Run ticks until ctx is cancelled. The sleep before the next tick is
// drift-corrected against the time the tick body consumed, so the loop
// self-corrects for processing jitter. A single tick's bus faults never
// abort the loop; the next tick simply tries again.
func (l *Loop) Run(ctx context.Context) {
	for {
		start := time.Now()
		l.Tick(l.cfg.Period)
		if !timex.SleepCorrected(ctx, l.cfg.Period, time.Since(start), l.cfg.SpeedFactor) {
			return
		}
	}
}
