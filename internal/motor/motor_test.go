// internal/motor/motor_test.go
package motor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munozp/solarsim/internal/busmem"
	"github.com/munozp/solarsim/internal/config"
	"github.com/munozp/solarsim/internal/sim"
	"github.com/munozp/solarsim/internal/status"
)

const testBase uint32 = 0xffff0000

// fastController runs steps at a compressed clock so full moves finish in
// a few milliseconds of wall time.
func fastController(t *testing.T) (*Controller, *sim.State, *busmem.RAM) {
	t.Helper()
	state := sim.NewState(0, config.Test{
		DurationSec: 1, Cycles: 1, MotorSpeedMdegSec: 9999, MaxPowerMw: 900000,
	})
	ram := busmem.NewRAM()
	bus := busmem.NewAdapter(testBase)
	bus.Attach(ram)
	return New(state, bus, 200), state, ram
}

func TestStart_ReachesExactTarget(t *testing.T) {
	for _, target := range []int32{1000, 1050, -2030, 100, 30} {
		c, state, ram := fastController(t)

		require.NoError(t, c.Start(context.Background(), target))
		require.True(t, c.Wait(context.Background()))

		assert.Equal(t, target, state.PanelAngle(), "target %d", target)
		w, err := ram.ReadWord(testBase + busmem.RegAngle)
		require.NoError(t, err)
		assert.Equal(t, target, w, "published angle for target %d", target)
	}
}

func TestStart_SecondMoveFromCurrentAngle(t *testing.T) {
	c, state, _ := fastController(t)

	require.NoError(t, c.Start(context.Background(), 500))
	require.True(t, c.Wait(context.Background()))
	require.NoError(t, c.Start(context.Background(), -500))
	require.True(t, c.Wait(context.Background()))

	assert.Equal(t, int32(-500), state.PanelAngle())
}

func TestStart_ZeroDistance(t *testing.T) {
	c, state, _ := fastController(t)

	require.NoError(t, c.Start(context.Background(), 0))
	require.True(t, c.Wait(context.Background()))
	assert.Equal(t, int32(0), state.PanelAngle())
	assert.False(t, c.Moving())
}

func TestStart_BusyWhileMoving(t *testing.T) {
	state := sim.NewState(0, config.Test{
		DurationSec: 1, Cycles: 1, MotorSpeedMdegSec: 100, MaxPowerMw: 900000,
	})
	bus := busmem.NewAdapter(testBase)
	bus.Attach(busmem.NewRAM())
	c := New(state, bus, 1) // 1s per step: stays busy for the whole test

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, 500))
	assert.True(t, c.Moving())
	assert.ErrorIs(t, c.Start(ctx, 100), ErrBusy)

	cancel()
	require.True(t, c.Wait(context.Background()))
	assert.False(t, c.Moving())
}

func TestRun_AbortDropsRemainingSteps(t *testing.T) {
	state := sim.NewState(0, config.Test{
		DurationSec: 1, Cycles: 1, MotorSpeedMdegSec: 100, MaxPowerMw: 900000,
	})
	bus := busmem.NewAdapter(testBase)
	bus.Attach(busmem.NewRAM())
	c := New(state, bus, 1)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx, 10000))
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.True(t, c.Wait(context.Background()))

	got := state.PanelAngle()
	assert.Less(t, got, int32(10000), "aborted move must not reach the target")
	assert.False(t, state.Flags().Has(status.MotorMoving), "moving bit cleared after abort")
	assert.False(t, c.Moving())
}

func TestMovingBit_SetDuringRun(t *testing.T) {
	state := sim.NewState(0, config.Test{
		DurationSec: 1, Cycles: 1, MotorSpeedMdegSec: 100, MaxPowerMw: 900000,
	})
	ram := busmem.NewRAM()
	bus := busmem.NewAdapter(testBase)
	bus.Attach(ram)
	c := New(state, bus, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, 1000))
	assert.Eventually(t, func() bool {
		w, err := ram.ReadWord(testBase + busmem.RegStatus)
		return err == nil && status.Flags(w).Has(status.MotorMoving)
	}, time.Second, time.Millisecond)

	cancel()
	require.True(t, c.Wait(context.Background()))

	w, err := ram.ReadWord(testBase + busmem.RegStatus)
	require.NoError(t, err)
	assert.False(t, status.Flags(w).Has(status.MotorMoving))
}

func TestPartialStep_SleepsOwnShare(t *testing.T) {
	state := sim.NewState(0, config.Test{
		DurationSec: 1, Cycles: 1, MotorSpeedMdegSec: 1000, MaxPowerMw: 900000,
	})
	bus := busmem.NewAdapter(testBase)
	bus.Attach(busmem.NewRAM())
	c := New(state, bus, 1)

	// A lone 10 mdeg step at 1000 mdeg/s is 10ms, not the 100ms a full
	// step would take.
	start := time.Now()
	require.NoError(t, c.Start(context.Background(), 10))
	require.True(t, c.Wait(context.Background()))

	assert.Equal(t, int32(10), state.PanelAngle())
	assert.Less(t, time.Since(start), 80*time.Millisecond)
}

func TestWait_IdleController(t *testing.T) {
	c, _, _ := fastController(t)
	assert.True(t, c.Wait(context.Background()))
}

func TestWait_CancelledContext(t *testing.T) {
	state := sim.NewState(0, config.Test{
		DurationSec: 1, Cycles: 1, MotorSpeedMdegSec: 100, MaxPowerMw: 900000,
	})
	bus := busmem.NewAdapter(testBase)
	bus.Attach(busmem.NewRAM())
	c := New(state, bus, 1)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	require.NoError(t, c.Start(runCtx, 5000))

	waitCtx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, c.Wait(waitCtx))
}
