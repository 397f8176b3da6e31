package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	conf, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3400.0, conf.Battery.NominalCapacityMAh)
	assert.Equal(t, 5*time.Minute, conf.Battery.SettleGracePeriod)
	assert.Equal(t, "ina219", conf.Sensor.Type)
	assert.Equal(t, uint16(0x41), conf.Sensor.Address)
	assert.Equal(t, 5*time.Second, conf.Daemon.PollInterval)
	assert.Equal(t, defaultStateFile, conf.Daemon.StateFile)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	conf, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3400.0, conf.Battery.NominalCapacityMAh)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery-gauge.yaml")
	content := `
battery:
  nominal_capacity_mah: 5000
  settle_grace_period: 10m
  curve:
    - {voltage: 12.6, percent: 100}
    - {voltage: 11.0, percent: 50}
    - {voltage: 9.0, percent: 0}
sensor:
  type: serial
  serial_device: /dev/ttyUSB0
  baud: 9600
daemon:
  poll_interval: 2s
  save_interval: 1m
  state_file: /tmp/battery-state.json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	conf, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5000.0, conf.Battery.NominalCapacityMAh)
	assert.Equal(t, 10*time.Minute, conf.Battery.SettleGracePeriod)
	assert.Equal(t, "serial", conf.Sensor.Type)
	assert.Equal(t, 9600, conf.Sensor.Baud)
	assert.Equal(t, 2*time.Second, conf.Daemon.PollInterval)
	assert.Equal(t, "/tmp/battery-state.json", conf.Daemon.StateFile)

	// Defaults still apply to everything the file leaves out.
	assert.Equal(t, 9.6, conf.Battery.CriticalVoltage)

	cfg := conf.estimatorConfig()
	require.Len(t, cfg.Curve, 3)
	assert.InDelta(t, 50, cfg.Curve.PercentAt(11.0), 0.001)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown sensor":    "sensor:\n  type: spi\n",
		"zero poll":         "daemon:\n  poll_interval: 0s\n",
		"save below poll":   "daemon:\n  poll_interval: 10s\n  save_interval: 2s\n",
		"negative capacity": "battery:\n  nominal_capacity_mah: -10\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			_, err := loadConfig(path)
			assert.Error(t, err)
		})
	}
}
