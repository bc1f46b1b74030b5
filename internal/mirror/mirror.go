// internal/mirror/mirror.go
package mirror

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/munozp/solarsim/internal/sim"
)

// Mirror block layout, in 16-bit registers from the base register.
// 32-bit values are split big-endian: high word first.
const (
	RegPowerHi   = 0 // output power, mWh
	RegPowerLo   = 1
	RegSensorsHi = 2 // left sensor
	RegSensorsLo = 3 // right sensor
	RegAngleHi   = 4 // panel angle, milli-degrees, two's complement
	RegAngleLo   = 5
	RegBatteryHi = 6 // battery level, mAh
	RegBatteryLo = 7
	RegStatus    = 8 // bit0 motor moving, bit1 test running
	RegFailures  = 9 // rejected command count, saturating

	// BlockRegisters is the full mirror block size.
	BlockRegisters = 10
)

// registerWriter is the exact contract the mirror uses.
type registerWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Config is the minimal runtime config the mirror needs.
type Config struct {
	UnitID       uint8
	BaseRegister uint16
	Interval     time.Duration
}

// Mirror periodically publishes the device register block to an external
// Modbus holding-register memory. Publishing only: the mirror carries no
// command path back into the device.
type Mirror struct {
	cfg   Config
	state *sim.State
	cli   registerWriter
}

// New creates a mirror bound to a connected client.
func New(cfg Config, state *sim.State, cli registerWriter) (*Mirror, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("mirror: interval must be > 0")
	}
	if state == nil || cli == nil {
		return nil, errors.New("mirror: state and client required")
	}
	return &Mirror{cfg: cfg, state: state, cli: cli}, nil
}

// EncodeBlock converts a snapshot into the full mirror block.
// No IO. No side effects.
func EncodeBlock(s sim.Snapshot) []uint16 {
	regs := make([]uint16, BlockRegisters)

	put32 := func(hi int, v int32) {
		regs[hi] = uint16(uint32(v) >> 16)
		regs[hi+1] = uint16(uint32(v))
	}

	put32(RegPowerHi, int32(s.OutputPowerMw))
	put32(RegSensorsHi, s.SensorWord)
	put32(RegAngleHi, s.PanelAngleMdeg)
	put32(RegBatteryHi, int32(s.BatteryMah))

	regs[RegStatus] = uint16(s.Flags.Word())

	failures := s.Failures
	if failures > 65535 {
		failures = 65535
	}
	regs[RegFailures] = uint16(failures)

	return regs
}

// WriteOnce encodes and delivers one snapshot.
func (m *Mirror) WriteOnce() error {
	regs := EncodeBlock(m.state.Snapshot())
	return m.cli.WriteRegisters(m.cfg.UnitID, m.cfg.BaseRegister, regs)
}

// Run pushes the block on the configured interval until ctx is cancelled.
// A failed write is logged and retried on the next tick.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.WriteOnce(); err != nil {
				log.Printf("mirror: block write failed: %v", err)
			}
		}
	}
}
