// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeTemp(t, `
device:
  base_address: 0xffff0000
  battery_period_ms: 50
  speed_factor: 2.5
  initial_battery_pct: 75
  default_test: "060270009000"
  mirror:
    endpoint: "127.0.0.1:1502"
    unit_id: 3
    base_register: 100
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	d := cfg.Device
	assert.Equal(t, uint32(0xffff0000), d.BaseAddress)
	assert.Equal(t, 50, d.BatteryPeriodMs)
	assert.Equal(t, 2.5, d.SpeedFactor)
	require.NotNil(t, d.InitialBatteryPct)
	assert.Equal(t, 75, *d.InitialBatteryPct)
	require.NotNil(t, d.Mirror)
	assert.Equal(t, "127.0.0.1:1502", d.Mirror.Endpoint)
	assert.Equal(t, uint8(3), d.Mirror.UnitID)
	assert.Equal(t, uint16(100), d.Mirror.BaseRegister)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "device: [not a map"))
	assert.Error(t, err)
}

func intp(v int) *int { return &v }

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Device: DeviceConfig{
			BatteryPeriodMs:   100,
			SpeedFactor:       1,
			InitialBatteryPct: intp(50),
			DefaultTest:       DefaultToken,
		}}
	}

	assert.NoError(t, Validate(valid()))

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative period", func(c *Config) { c.Device.BatteryPeriodMs = -1 }},
		{"negative speed", func(c *Config) { c.Device.SpeedFactor = -0.5 }},
		{"pct over 100", func(c *Config) { c.Device.InitialBatteryPct = intp(101) }},
		{"pct negative", func(c *Config) { c.Device.InitialBatteryPct = intp(-1) }},
		{"bad default token", func(c *Config) { c.Device.DefaultTest = "garbage" }},
		{"mirror without endpoint", func(c *Config) { c.Device.Mirror = &MirrorConfig{} }},
		{"mirror negative interval", func(c *Config) {
			c.Device.Mirror = &MirrorConfig{Endpoint: "x:1", IntervalMs: -1}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{Mirror: &MirrorConfig{Endpoint: "x:1"}}}
	Normalize(cfg)

	d := cfg.Device
	assert.Equal(t, DefaultBaseAddress, d.BaseAddress)
	assert.Equal(t, DefaultBatteryPeriodMs, d.BatteryPeriodMs)
	assert.Equal(t, 1.0, d.SpeedFactor)
	require.NotNil(t, d.InitialBatteryPct)
	assert.Equal(t, DefaultInitialBatteryPct, *d.InitialBatteryPct)
	assert.Equal(t, DefaultToken, d.DefaultTest)
	assert.Equal(t, 250, d.Mirror.IntervalMs)
	assert.Equal(t, 2000, d.Mirror.TimeoutMs)
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{
		BaseAddress:       0x1000,
		BatteryPeriodMs:   20,
		SpeedFactor:       4,
		InitialBatteryPct: intp(10),
		DefaultTest:       "005190015000",
	}}
	Normalize(cfg)

	assert.Equal(t, uint32(0x1000), cfg.Device.BaseAddress)
	assert.Equal(t, 20, cfg.Device.BatteryPeriodMs)
	assert.Equal(t, 4.0, cfg.Device.SpeedFactor)
	assert.Equal(t, 10, *cfg.Device.InitialBatteryPct)
	assert.Equal(t, "005190015000", cfg.Device.DefaultTest)
	assert.Nil(t, cfg.Device.Mirror)
}

func TestNormalize_EmptyBatteryIsExplicit(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{InitialBatteryPct: intp(0)}}
	Normalize(cfg)
	require.NotNil(t, cfg.Device.InitialBatteryPct)
	assert.Equal(t, 0, *cfg.Device.InitialBatteryPct,
		"a configured 0%% start must survive normalization")
}
