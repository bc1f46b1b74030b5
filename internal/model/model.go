// internal/model/model.go
package model

import (
	"math"

	"github.com/munozp/solarsim/internal/mathx"
)

// Physical constants of the simulated panel. Pure formulas only: no IO,
// no clocks, no shared state.

const (
	// SunMin and SunMax bound the raw sun-position input.
	SunMin = 0
	SunMax = 1000

	// SunMidpoint is the resting input value (incidence 90 deg at angle 0).
	SunMidpoint = (SunMax - SunMin) / 2

	// ShadeMargin is the band at either end of the input range where the
	// sun is below the horizon.
	ShadeMargin = 50

	// DarkIncidence is the forced incidence angle while in shade.
	DarkIncidence = -1

	// MaxSensorValue is the saturation value of either light sensor.
	MaxSensorValue = 255

	// BusVoltageMv is the power bus voltage in millivolts.
	BusVoltageMv = 32000

	// BatteryCapacityMah is the battery capacity in milliamp-hours.
	BatteryCapacityMah = 8000

	// MinPanelAngleMdeg and MaxPanelAngleMdeg bound the panel orientation
	// in milli-degrees.
	MinPanelAngleMdeg = -30000
	MaxPanelAngleMdeg = 30000

	// MotorStepMdeg is the fixed motor step size in milli-degrees.
	MotorStepMdeg = 100
)

// sunScale maps the usable input range onto [0,180] degrees.
const sunScale = 180.0 / float64(SunMax-SunMin-2*ShadeMargin)

// IsDark reports whether the raw input lies within either shade margin,
// boundaries included.
func IsDark(raw int) bool {
	return raw <= SunMin+ShadeMargin || raw >= SunMax-ShadeMargin
}

// SunDegrees converts a raw (non-dark) input value to the sun elevation in
// degrees over [0,180].
func SunDegrees(raw int) float64 {
	return float64(raw-SunMin-ShadeMargin) * sunScale
}

// Incidence returns the light incidence angle in degrees for a raw input and
// a panel angle in milli-degrees, or DarkIncidence while in shade.
func Incidence(raw int, panelAngleMdeg int32) float64 {
	if IsDark(raw) {
		return DarkIncidence
	}
	return SunDegrees(raw) - float64(panelAngleMdeg)/1000.0
}

// OutputPower returns the panel output in milliwatts for an incidence angle.
// Outside (0,180) degrees the panel produces nothing.
func OutputPower(incidence, maxPowerMw float64) float64 {
	if incidence <= 0 || incidence >= 180 {
		return 0
	}
	return math.Sin(incidence*math.Pi/180) * maxPowerMw
}

// ChargeDelta returns the milliamp-hours gained over dtMs milliseconds at the
// given output power, scaled by the simulation speed factor.
func ChargeDelta(powerMw, dtMs, speedFactor float64) float64 {
	return powerMw / BusVoltageMv * dtMs / 3_600_000 * speedFactor
}

// ClampBattery keeps a battery level within [0, BatteryCapacityMah].
func ClampBattery(mah float64) float64 {
	return mathx.Clamp(mah, 0, BatteryCapacityMah)
}

// Curve is the response of the non-saturated sensor to an incidence angle
// folded into [0,90]. The curve shape is a policy, not a physical law; the
// logarithmic response is the shipped default.
type Curve func(folded float64) int

// LogResponse is the default logarithmic falloff curve.
func LogResponse(folded float64) int {
	v := int(math.Log(folded/90+2) * (MaxSensorValue / 2.0))
	return mathx.Clamp(v, 0, MaxSensorValue)
}

// Sensors returns the left and right light-sensor readings. In the dark both
// read zero. Otherwise the sensor facing the sun saturates and the opposite
// one follows the falloff curve: left saturates below 90 degrees, right at or
// above, using the mirrored angle. A nil curve selects LogResponse.
func Sensors(dark bool, incidence float64, curve Curve) (left, right int) {
	if dark {
		return 0, 0
	}
	if curve == nil {
		curve = LogResponse
	}
	if incidence < 90 {
		return MaxSensorValue, curve(incidence)
	}
	return curve(180 - incidence), MaxSensorValue
}

// PackSensors encodes the sensor pair as one bus word: left in bits [31:16],
// right masked into bits [15:0].
func PackSensors(left, right int) int32 {
	return int32(left)<<16 | int32(right)&0xFFFF
}
