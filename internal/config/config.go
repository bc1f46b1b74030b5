// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device DeviceConfig `yaml:"device"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	// BaseAddress is the MMIO base the register offsets hang from.
	BaseAddress uint32 `yaml:"base_address"`

	// BatteryPeriodMs is the battery/power loop tick period in wall ms.
	BatteryPeriodMs int `yaml:"battery_period_ms"`

	// SpeedFactor scales simulated time. It compresses sleeps and keeps
	// per-tick charge proportional; 1.0 is real time.
	SpeedFactor float64 `yaml:"speed_factor"`

	// InitialBatteryPct presets the battery on start and reset. 0 is a
	// meaningful value (empty battery), so absence is nil, not zero.
	InitialBatteryPct *int `yaml:"initial_battery_pct"`

	// DefaultTest is the sentinel test-configuration token.
	DefaultTest string `yaml:"default_test"`

	// Mirror enables the external Modbus register mirror (optional).
	Mirror *MirrorConfig `yaml:"mirror"`
}

// ---- MIRROR ----

type MirrorConfig struct {
	Endpoint     string `yaml:"endpoint"`
	UnitID       uint8  `yaml:"unit_id"`
	BaseRegister uint16 `yaml:"base_register"`
	IntervalMs   int    `yaml:"interval_ms"`
	TimeoutMs    int    `yaml:"timeout_ms"`
}

// Load reads and decodes a YAML configuration file.
// It performs no validation; call Validate and then Normalize.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}
