package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/cyberboy-project/battery-gauge/soc"
)

const defaultStateFile = "/var/lib/battery-gauge/state.json"

// Config is the daemon configuration record, loaded once at startup and
// never mutated afterwards.
type Config struct {
	Battery BatteryConfig `mapstructure:"battery"`
	Sensor  SensorConfig  `mapstructure:"sensor"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
}

type BatteryConfig struct {
	NominalCapacityMAh       float64            `mapstructure:"nominal_capacity_mah"`
	VoltMin                  float64            `mapstructure:"volt_min"`
	VoltMax                  float64            `mapstructure:"volt_max"`
	CriticalVoltage          float64            `mapstructure:"critical_voltage"`
	ChargeCurrentThresholdMA float64            `mapstructure:"charge_current_threshold_ma"`
	SettleGracePeriod        time.Duration      `mapstructure:"settle_grace_period"`
	DriftStepPct             float64            `mapstructure:"drift_step_pct"`
	FullConfirmPct           float64            `mapstructure:"full_confirm_pct"`
	InternalResistanceOhms   float64            `mapstructure:"internal_resistance_ohms"`
	Curve                    []CurvePointConfig `mapstructure:"curve"`
}

// CurvePointConfig is one voltage/percent pair of a configured discharge
// curve. An empty curve list keeps the built-in 3S Li-ion curve.
type CurvePointConfig struct {
	Voltage float64 `mapstructure:"voltage"`
	Percent float64 `mapstructure:"percent"`
}

type SensorConfig struct {
	Type            string  `mapstructure:"type"` // "ina219" or "serial"
	I2CBus          string  `mapstructure:"i2c_bus"`
	Address         uint16  `mapstructure:"address"`
	ShuntOhms       float64 `mapstructure:"shunt_ohms"`
	MaxExpectedAmps float64 `mapstructure:"max_expected_amps"`
	InvertCurrent   bool    `mapstructure:"invert_current"`
	SerialDevice    string  `mapstructure:"serial_device"`
	Baud            int     `mapstructure:"baud"`
}

type DaemonConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	SaveInterval  time.Duration `mapstructure:"save_interval"`
	StateFile     string        `mapstructure:"state_file"`
	ReadRetries   int           `mapstructure:"read_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// loadConfig reads the YAML configuration file, falling back to defaults
// when the file is absent.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				log.Warnf("Config file %s not found, using defaults", path)
			} else {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func setDefaults(v *viper.Viper) {
	socDefaults := soc.DefaultConfig()

	v.SetDefault("battery.nominal_capacity_mah", socDefaults.NominalCapacityMAh)
	v.SetDefault("battery.volt_min", socDefaults.VoltMin)
	v.SetDefault("battery.volt_max", socDefaults.VoltMax)
	v.SetDefault("battery.critical_voltage", socDefaults.CriticalVoltage)
	v.SetDefault("battery.charge_current_threshold_ma", socDefaults.ChargeCurrentThresholdMA)
	v.SetDefault("battery.settle_grace_period", socDefaults.SettleGracePeriod)
	v.SetDefault("battery.drift_step_pct", socDefaults.DriftStepPct)
	v.SetDefault("battery.full_confirm_pct", socDefaults.FullConfirmPct)
	v.SetDefault("battery.internal_resistance_ohms", socDefaults.InternalResistanceOhms)

	v.SetDefault("sensor.type", "ina219")
	v.SetDefault("sensor.i2c_bus", "1")
	v.SetDefault("sensor.address", 0x41)
	v.SetDefault("sensor.shunt_ohms", 0.1)
	v.SetDefault("sensor.max_expected_amps", 2.0)
	v.SetDefault("sensor.invert_current", false)
	v.SetDefault("sensor.serial_device", "/dev/ttyAMA0")
	v.SetDefault("sensor.baud", 115200)

	v.SetDefault("daemon.poll_interval", 5*time.Second)
	v.SetDefault("daemon.save_interval", 30*time.Second)
	v.SetDefault("daemon.state_file", defaultStateFile)
	v.SetDefault("daemon.read_retries", 3)
	v.SetDefault("daemon.retry_interval", time.Second)
}

func (c *Config) validate() error {
	switch c.Sensor.Type {
	case "ina219", "serial":
	default:
		return fmt.Errorf("unknown sensor type %q", c.Sensor.Type)
	}
	if c.Daemon.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Daemon.PollInterval)
	}
	if c.Daemon.SaveInterval < c.Daemon.PollInterval {
		return fmt.Errorf("save interval %s must not be below the poll interval %s",
			c.Daemon.SaveInterval, c.Daemon.PollInterval)
	}
	if c.Daemon.ReadRetries < 1 {
		return fmt.Errorf("read retries must be at least 1, got %d", c.Daemon.ReadRetries)
	}
	return c.estimatorConfig().Validate()
}

// estimatorConfig converts the battery section into the estimator's
// immutable configuration record.
func (c *Config) estimatorConfig() soc.Config {
	cfg := soc.Config{
		NominalCapacityMAh:       c.Battery.NominalCapacityMAh,
		VoltMin:                  c.Battery.VoltMin,
		VoltMax:                  c.Battery.VoltMax,
		CriticalVoltage:          c.Battery.CriticalVoltage,
		ChargeCurrentThresholdMA: c.Battery.ChargeCurrentThresholdMA,
		SettleGracePeriod:        c.Battery.SettleGracePeriod,
		DriftStepPct:             c.Battery.DriftStepPct,
		FullConfirmPct:           c.Battery.FullConfirmPct,
		InternalResistanceOhms:   c.Battery.InternalResistanceOhms,
		Curve:                    soc.DefaultLiIon3SCurve(),
	}
	if len(c.Battery.Curve) > 0 {
		curve := make(soc.DischargeCurve, 0, len(c.Battery.Curve))
		for _, p := range c.Battery.Curve {
			curve = append(curve, soc.CurvePoint{Voltage: p.Voltage, Percent: p.Percent})
		}
		cfg.Curve = curve
	}
	return cfg
}
