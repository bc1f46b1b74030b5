// internal/sim/state.go
package sim

import (
	"sync"

	"github.com/munozp/solarsim/internal/config"
	"github.com/munozp/solarsim/internal/mathx"
	"github.com/munozp/solarsim/internal/model"
	"github.com/munozp/solarsim/internal/status"
)

// Snapshot is a consistent value copy of the device state, safe to hand to
// observers and the register mirror.
type Snapshot struct {
	OutputPowerMw  float64
	BatteryMah     float64
	PanelAngleMdeg int32
	SunPosition    int
	SensorWord     int32
	Flags          status.Flags
	Failures       int
	InputEnabled   bool
}

// Notifier receives state-change events for a presentation layer. The core
// runs fine with none attached.
type Notifier interface {
	OnStateChanged(Snapshot)
}

// State is the single mutable device state shared by the battery loop, the
// motor controller, the command listener and the test sequencer. Individual
// field accesses are serialized by one mutex; cross-field races between
// loops (sun position vs panel angle) are accepted as last-writer-wins.
type State struct {
	mu sync.Mutex

	outputPowerMw  float64
	batteryMah     float64
	panelAngleMdeg int32
	sunPosition    int
	sensorWord     int32
	flags          status.Flags
	failures       int
	inputEnabled   bool

	// overrideMah, when armed, replaces the battery level on the next
	// battery tick. At most one override is pending; arming again before
	// consumption overwrites it.
	overrideMah   float64
	overrideArmed bool

	test     config.Test
	notifier Notifier
}

// NewState creates a device state with the battery preset to initialMah,
// angle zero and the sun at the midpoint of its range.
func NewState(initialMah float64, test config.Test) *State {
	return &State{
		batteryMah:   model.ClampBattery(initialMah),
		sunPosition:  model.SunMidpoint,
		inputEnabled: true,
		test:         test,
	}
}

// Reset returns the state to its start-up values, keeping the notifier.
func (s *State) Reset(initialMah float64, test config.Test) {
	s.mu.Lock()
	s.outputPowerMw = 0
	s.sensorWord = 0
	s.batteryMah = model.ClampBattery(initialMah)
	s.panelAngleMdeg = 0
	s.sunPosition = model.SunMidpoint
	s.flags = 0
	s.failures = 0
	s.inputEnabled = true
	s.overrideArmed = false
	s.test = test
	s.mu.Unlock()
}

// Snapshot returns a value copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		OutputPowerMw:  s.outputPowerMw,
		BatteryMah:     s.batteryMah,
		PanelAngleMdeg: s.panelAngleMdeg,
		SunPosition:    s.sunPosition,
		SensorWord:     s.sensorWord,
		Flags:          s.flags,
		Failures:       s.failures,
		InputEnabled:   s.inputEnabled,
	}
}

// SetNotifier attaches the presentation observer. Pass nil to detach.
func (s *State) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Notify pushes a snapshot to the attached notifier, if any.
func (s *State) Notify() {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n != nil {
		n.OnStateChanged(s.Snapshot())
	}
}

// ---- sun position ----

func (s *State) SunPosition() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sunPosition
}

// SetSunPosition moves the sun input, clamped to its raw range. It does not
// consult the input-enabled flag; callers owning the input (the sequencer)
// write through here, the facade checks InputEnabled first.
func (s *State) SetSunPosition(raw int) {
	s.mu.Lock()
	s.sunPosition = mathx.Clamp(raw, model.SunMin, model.SunMax)
	s.mu.Unlock()
}

func (s *State) InputEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputEnabled
}

func (s *State) SetInputEnabled(on bool) {
	s.mu.Lock()
	s.inputEnabled = on
	s.mu.Unlock()
}

// ---- panel angle ----

func (s *State) PanelAngle() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelAngleMdeg
}

func (s *State) SetPanelAngle(mdeg int32) {
	s.mu.Lock()
	s.panelAngleMdeg = mathx.Clamp(mdeg, model.MinPanelAngleMdeg, model.MaxPanelAngleMdeg)
	s.mu.Unlock()
}

// ---- power and battery ----

func (s *State) OutputPower() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputPowerMw
}

func (s *State) SetOutputPower(mw float64) {
	s.mu.Lock()
	s.outputPowerMw = mw
	s.mu.Unlock()
}

// SensorWord returns the last published packed sensor pair.
func (s *State) SensorWord() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensorWord
}

func (s *State) SetSensorWord(w int32) {
	s.mu.Lock()
	s.sensorWord = w
	s.mu.Unlock()
}

func (s *State) Battery() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batteryMah
}

func (s *State) SetBattery(mah float64) {
	s.mu.Lock()
	s.batteryMah = model.ClampBattery(mah)
	s.mu.Unlock()
}

// OverrideBattery arms a battery-level override for the next battery tick.
// A second call before consumption replaces the pending value; overrides are
// never queued.
func (s *State) OverrideBattery(mah float64) {
	s.mu.Lock()
	s.overrideMah = mah
	s.overrideArmed = true
	s.mu.Unlock()
}

// TakeOverride consumes a pending battery override, if armed.
func (s *State) TakeOverride() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.overrideArmed {
		return 0, false
	}
	s.overrideArmed = false
	return s.overrideMah, true
}

// ---- status flags ----

// SetFlags sets bits and returns the updated word for publishing.
func (s *State) SetFlags(b status.Flags) status.Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = s.flags.With(b)
	return s.flags
}

// ClearFlags clears bits and returns the updated word for publishing.
func (s *State) ClearFlags(b status.Flags) status.Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = s.flags.Without(b)
	return s.flags
}

func (s *State) Flags() status.Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// ---- failures ----

// AddFailure counts one rejected command and returns the new total.
func (s *State) AddFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures
}

func (s *State) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// ---- test configuration ----

// TestConfig returns the active test parameters.
func (s *State) TestConfig() config.Test {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.test
}

// SetTestConfig replaces the whole test configuration at once.
func (s *State) SetTestConfig(t config.Test) {
	s.mu.Lock()
	s.test = t
	s.mu.Unlock()
}
