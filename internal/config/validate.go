// internal/config/validate.go
package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	d := cfg.Device

	if d.BatteryPeriodMs < 0 {
		return fmt.Errorf("device: battery_period_ms must not be negative, got %d", d.BatteryPeriodMs)
	}
	if d.SpeedFactor < 0 {
		return fmt.Errorf("device: speed_factor must not be negative, got %g", d.SpeedFactor)
	}
	if d.InitialBatteryPct != nil && (*d.InitialBatteryPct < 0 || *d.InitialBatteryPct > 100) {
		return fmt.Errorf("device: initial_battery_pct must be within 0-100, got %d", *d.InitialBatteryPct)
	}

	// The default token must itself be a valid test configuration, or every
	// later "restore defaults" would fail at runtime.
	if d.DefaultTest != "" {
		if _, err := ParseToken(d.DefaultTest); err != nil {
			return fmt.Errorf("device: default_test: %w", err)
		}
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if d.Mirror == nil {
		return nil
	}

	m := d.Mirror
	if m.Endpoint == "" {
		return fmt.Errorf("mirror: endpoint required")
	}
	if m.IntervalMs < 0 {
		return fmt.Errorf("mirror: interval_ms must not be negative, got %d", m.IntervalMs)
	}
	if m.TimeoutMs < 0 {
		return fmt.Errorf("mirror: timeout_ms must not be negative, got %d", m.TimeoutMs)
	}

	return nil
}
