// internal/device/device.go
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/munozp/solarsim/internal/busmem"
	"github.com/munozp/solarsim/internal/config"
	"github.com/munozp/solarsim/internal/mirror"
	"github.com/munozp/solarsim/internal/model"
	"github.com/munozp/solarsim/internal/motor"
	"github.com/munozp/solarsim/internal/power"
	"github.com/munozp/solarsim/internal/sim"
	"github.com/munozp/solarsim/internal/suntest"
)

var (
	// ErrNotStarted rejects operations that need the loops running.
	ErrNotStarted = errors.New("device: not started")

	// ErrBusy rejects a reconfiguration while the motor or a test owns
	// the device.
	ErrBusy = errors.New("device: not idle")
)

// Device is the facade owning one simulated solar panel: the shared state,
// the bus adapter, the battery loop, the motor controller, the command
// listener and the test sequencer. Instances are independent; any number of
// devices can exist side by side.
type Device struct {
	cfg   config.DeviceConfig
	bus   *busmem.Adapter
	state *sim.State
	loop  *power.Loop
	motor *motor.Controller
	seq   *suntest.Sequencer

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	unwatch   func()
	mirrorEnd func() error
	started   bool
}

// New composes a device from a validated, normalized configuration and a
// host memory. Loops are not running until Start.
func New(cfg config.DeviceConfig, mem busmem.Memory) (*Device, error) {
	defTest, err := config.ParseToken(cfg.DefaultTest)
	if err != nil {
		return nil, fmt.Errorf("device: default test token: %w", err)
	}

	bus := busmem.NewAdapter(cfg.BaseAddress)
	if mem != nil {
		bus.Attach(mem)
	}

	state := sim.NewState(initialBattery(cfg), defTest)
	period := time.Duration(cfg.BatteryPeriodMs) * time.Millisecond

	loop, err := power.New(power.Config{
		Period:      period,
		SpeedFactor: cfg.SpeedFactor,
	}, state, bus)
	if err != nil {
		return nil, err
	}

	mc := motor.New(state, bus, cfg.SpeedFactor)

	seq, err := suntest.New(state, bus, mc, period, cfg.SpeedFactor, cfg.DefaultTest)
	if err != nil {
		return nil, err
	}

	return &Device{
		cfg:   cfg,
		bus:   bus,
		state: state,
		loop:  loop,
		motor: mc,
		seq:   seq,
	}, nil
}

func initialBattery(cfg config.DeviceConfig) float64 {
	pct := config.DefaultInitialBatteryPct
	if cfg.InitialBatteryPct != nil {
		pct = *cfg.InitialBatteryPct
	}
	return model.BatteryCapacityMah * float64(pct) / 100
}

// Start registers the command observer and launches the periodic loops.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return errors.New("device: already started")
	}
	if !d.bus.Connected() {
		return errors.New("device: no memory attached")
	}

	unwatch, err := d.bus.Watch(busmem.RegCommand, d.onBusWrite)
	if err != nil {
		return fmt.Errorf("device: command observer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.ctx, d.cancel = ctx, cancel
	d.unwatch = unwatch

	// Baseline registers so the host sees a coherent block before the
	// first tick lands.
	d.bus.Publish(busmem.RegAngle, d.state.PanelAngle())
	d.bus.Publish(busmem.RegStatus, d.state.Flags().Word())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop.Run(ctx)
	}()

	if mcfg := d.cfg.Mirror; mcfg != nil {
		cli, err := mirror.NewEndpointClient(mirror.ClientConfig{
			Endpoint: mcfg.Endpoint,
			Timeout:  time.Duration(mcfg.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			unwatch()
			cancel()
			return fmt.Errorf("device: mirror client: %w", err)
		}
		m, err := mirror.New(mirror.Config{
			UnitID:       mcfg.UnitID,
			BaseRegister: mcfg.BaseRegister,
			Interval:     time.Duration(mcfg.IntervalMs) * time.Millisecond,
		}, d.state, cli)
		if err != nil {
			cli.Close()
			unwatch()
			cancel()
			return err
		}
		d.mirrorEnd = cli.Close
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			m.Run(ctx)
		}()
	}

	d.started = true
	return nil
}

// Stop cancels every running task and joins them. Status bits owned by
// interrupted tasks are cleared by the tasks themselves on the way out.
func (d *Device) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	cancel := d.cancel
	unwatch := d.unwatch
	mirrorEnd := d.mirrorEnd
	d.unwatch = nil
	d.mirrorEnd = nil
	d.mu.Unlock()

	unwatch()
	cancel()
	// The motor run goroutine is owned by the controller, not the
	// WaitGroup; join it explicitly so no straggling angle write lands
	// after Stop (or a following Reset) returns.
	d.motor.Wait(context.Background())
	d.wg.Wait()
	if mirrorEnd != nil {
		_ = mirrorEnd()
	}
}

// Reset stops the device and returns the state to its start-up values.
// The caller may Start again afterwards.
func (d *Device) Reset() {
	d.Stop()
	defTest, _ := config.ParseToken(d.cfg.DefaultTest) // validated in New
	d.state.Reset(initialBattery(d.cfg), defTest)
	d.bus.Publish(busmem.RegAngle, 0)
	d.bus.Publish(busmem.RegStatus, 0)
	d.state.Notify()
}

// onBusWrite is the command listener. Only genuine external writes to the
// command register are considered; anything arriving while the motor moves,
// or outside the accepted angle range, is counted as a failure and dropped.
// Rejected commands are never queued.
func (d *Device) onBusWrite(addr uint32, value int32, external bool) {
	if !external || addr != d.bus.Address(busmem.RegCommand) {
		return
	}
	if d.motor.Moving() ||
		value < model.MinPanelAngleMdeg || value > model.MaxPanelAngleMdeg {
		d.state.AddFailure()
		return
	}

	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		d.state.AddFailure()
		return
	}
	if err := d.motor.Start(ctx, value); err != nil {
		// Raced with another accepted command.
		d.state.AddFailure()
	}
}

// SetSunPosition moves the sun input unless a running test owns it.
// Reports whether the input was applied.
func (d *Device) SetSunPosition(raw int) bool {
	if !d.state.InputEnabled() {
		return false
	}
	d.state.SetSunPosition(raw)
	d.state.Notify()
	return true
}

// OverrideBattery arms a battery-level override for the next battery tick.
func (d *Device) OverrideBattery(mah float64) {
	d.state.OverrideBattery(mah)
}

// Configure atomically replaces the test configuration from a token. The
// device must be idle: no motor move, no running test.
func (d *Device) Configure(token string) error {
	if d.motor.Moving() || d.seq.Running() {
		return ErrBusy
	}
	tc, err := config.ParseToken(token)
	if err != nil {
		return err
	}
	d.state.SetTestConfig(tc)
	return nil
}

// RunTest executes the scripted sun sweep and returns its report.
func (d *Device) RunTest(token string) (*suntest.Report, error) {
	d.mu.Lock()
	ctx := d.ctx
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}
	return d.seq.Run(ctx, token)
}

// SetNotifier attaches a presentation observer to the shared state.
func (d *Device) SetNotifier(n sim.Notifier) { d.state.SetNotifier(n) }

// Snapshot returns a value copy of the device state.
func (d *Device) Snapshot() sim.Snapshot { return d.state.Snapshot() }

// Failures returns the rejected-command count.
func (d *Device) Failures() int { return d.state.Failures() }

// Bus exposes the adapter, mainly for hosts that need register addresses.
func (d *Device) Bus() *busmem.Adapter { return d.bus }
