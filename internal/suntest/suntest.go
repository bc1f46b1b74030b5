// internal/suntest/suntest.go
package suntest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/munozp/solarsim/internal/busmem"
	"github.com/munozp/solarsim/internal/config"
	"github.com/munozp/solarsim/internal/model"
	"github.com/munozp/solarsim/internal/motor"
	"github.com/munozp/solarsim/internal/sim"
	"github.com/munozp/solarsim/internal/status"
	"github.com/munozp/solarsim/internal/timex"
)

var (
	// ErrNotConnected aborts a test requested while the device is not
	// observing the bus. Nothing is mutated.
	ErrNotConnected = errors.New("suntest: device not connected to the bus")

	// ErrInvalidConfig aborts a test whose configuration token is
	// malformed. Nothing is mutated.
	ErrInvalidConfig = errors.New("suntest: invalid test configuration")

	// ErrRunning rejects a second concurrent test run.
	ErrRunning = errors.New("suntest: test already running")
)

// CycleResult records one sweep cycle.
type CycleResult struct {
	DurationMs  int64
	ChargeDelta float64
}

// Report aggregates a full test run.
type Report struct {
	Cycles          []CycleResult
	TotalDurationMs int64
	TotalCharge     float64
	Failures        int

	// ResultToken is the encoded result, only set when the run used a
	// non-default configuration token.
	ResultToken string
}

// Sequencer runs the scripted multi-cycle sun sweep. At most one run is
// active at a time.
type Sequencer struct {
	state       *sim.State
	bus         *busmem.Adapter
	motor       *motor.Controller
	settle      time.Duration
	speedFactor float64

	// defaultToken is the sentinel; any other token is parsed and applied
	// for the run.
	defaultToken string
	defaultTest  config.Test

	running atomic.Bool
}

// New creates an idle sequencer. settle is the pause used for input
// settling and cycle repositioning, normally the battery loop period.
func New(state *sim.State, bus *busmem.Adapter, m *motor.Controller,
	settle time.Duration, speedFactor float64, defaultToken string) (*Sequencer, error) {

	def, err := config.ParseToken(defaultToken)
	if err != nil {
		return nil, fmt.Errorf("suntest: default token: %w", err)
	}
	if settle <= 0 {
		settle = time.Duration(config.DefaultBatteryPeriodMs) * time.Millisecond
	}
	if speedFactor <= 0 {
		speedFactor = 1
	}
	return &Sequencer{
		state:        state,
		bus:          bus,
		motor:        m,
		settle:       settle,
		speedFactor:  speedFactor,
		defaultToken: defaultToken,
		defaultTest:  def,
	}, nil
}

// Running reports whether a test run is in progress.
func (s *Sequencer) Running() bool { return s.running.Load() }

// Run executes one full scripted test and returns its report. token equal to
// the configured default keeps the active parameters; any other token is
// parsed and applied atomically for the run, and the report then carries the
// encoded result token.
func (s *Sequencer) Run(ctx context.Context, token string) (*Report, error) {
	if !s.bus.Connected() {
		return nil, ErrNotConnected
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer s.running.Store(false)

	// A commanded move owns the panel; let it finish first.
	if !s.motor.Wait(ctx) {
		return nil, ctx.Err()
	}

	custom := token != s.defaultToken
	if custom {
		tc, err := config.ParseToken(token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		s.state.SetTestConfig(tc)
	}
	tc := s.state.TestConfig()

	s.state.SetInputEnabled(false)
	w := s.state.SetFlags(status.TestRunning)
	s.bus.Publish(busmem.RegStatus, w.Word())
	s.state.Notify()

	defer func() {
		// Every exit path, aborts included: test bit cleared, input given
		// back at the midpoint, defaults restored after a custom run.
		w := s.state.ClearFlags(status.TestRunning)
		s.bus.Publish(busmem.RegStatus, w.Word())
		if custom {
			s.state.SetTestConfig(s.defaultTest)
		}
		s.state.SetSunPosition(model.SunMidpoint)
		s.state.SetInputEnabled(true)
		s.state.Notify()
	}()

	// Park the sun at the range minimum, drain the battery, and give the
	// battery loop one period to pick both up.
	s.state.SetSunPosition(model.SunMin)
	s.state.OverrideBattery(0)
	if !timex.Sleep(ctx, timex.Scaled(s.settle, s.speedFactor)) {
		return nil, ctx.Err()
	}

	const sweepRange = model.SunMax - model.SunMin - 2*model.ShadeMargin

	rep := &Report{}
	for c := 0; c < tc.Cycles; c++ {
		// Brief pause so the previous cycle's charge settles before the
		// baseline is taken.
		if !timex.Sleep(ctx, timex.Scaled(s.settle, s.speedFactor)) {
			return nil, ctx.Err()
		}

		budget := int64(tc.DurationSec) * 1000
		df := budget / sweepRange
		if df < 1 {
			df = 1
		}

		start := time.Now()
		baseline := s.state.Battery()

		for p := model.SunMin; p < model.SunMax; p++ {
			s.state.SetSunPosition(p)

			delay := stepDelay(p, df)
			budget -= delay
			if budget <= 0 {
				break
			}
			if !timex.Sleep(ctx, timex.Scaled(time.Duration(delay)*time.Millisecond, s.speedFactor)) {
				return nil, ctx.Err()
			}
		}

		cr := CycleResult{
			DurationMs:  time.Since(start).Milliseconds(),
			ChargeDelta: s.state.Battery() - baseline,
		}
		rep.Cycles = append(rep.Cycles, cr)
		rep.TotalDurationMs += cr.DurationMs
		rep.TotalCharge += cr.ChargeDelta
	}

	rep.Failures = s.state.Failures()
	if custom {
		rep.ResultToken = config.EncodeResult(token, rep.TotalDurationMs,
			int(rep.TotalCharge), rep.Failures)
	}
	return rep, nil
}

// inShadeBand reports whether a sweep position sits in the widened band
// around either dark/lit boundary, boundaries included.
func inShadeBand(p int) bool {
	return p <= model.SunMin+2*model.ShadeMargin || p >= model.SunMax-2*model.ShadeMargin
}

// stepDelay returns the per-position sweep delay in ms: the base step df,
// doubled inside the widened shade band so the budget is spent
// disproportionately crossing the dead zones.
func stepDelay(p int, df int64) int64 {
	if inShadeBand(p) {
		return 2 * df
	}
	return df
}
