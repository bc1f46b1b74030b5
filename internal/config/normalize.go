// internal/config/normalize.go
package config

// Built-in defaults, matching the documented device behaviour.
const (
	// DefaultBaseAddress is the conventional MMIO segment base.
	DefaultBaseAddress uint32 = 0xffff0000

	// DefaultBatteryPeriodMs is the battery loop tick in wall ms.
	DefaultBatteryPeriodMs = 100

	// DefaultInitialBatteryPct is the battery preset when none is
	// configured.
	DefaultInitialBatteryPct = 50

	defaultSpeedFactor      = 1.0
	defaultMirrorIntervalMs = 250
	defaultMirrorTimeoutMs  = 2000
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	d := &cfg.Device

	if d.BaseAddress == 0 {
		d.BaseAddress = DefaultBaseAddress
	}
	if d.BatteryPeriodMs == 0 {
		d.BatteryPeriodMs = DefaultBatteryPeriodMs
	}
	if d.SpeedFactor == 0 {
		d.SpeedFactor = defaultSpeedFactor
	}
	if d.InitialBatteryPct == nil {
		pct := DefaultInitialBatteryPct
		d.InitialBatteryPct = &pct
	}
	if d.DefaultTest == "" {
		d.DefaultTest = DefaultToken
	}

	if d.Mirror != nil {
		if d.Mirror.IntervalMs == 0 {
			d.Mirror.IntervalMs = defaultMirrorIntervalMs
		}
		if d.Mirror.TimeoutMs == 0 {
			d.Mirror.TimeoutMs = defaultMirrorTimeoutMs
		}
	}
}
