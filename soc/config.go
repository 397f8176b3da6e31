package soc

import (
	"fmt"
	"time"
)

// Config is the immutable configuration record handed to the estimator at
// construction. Nothing in here is mutated at runtime.
type Config struct {
	// NominalCapacityMAh is the nameplate pack capacity, used until enough
	// cycles have been observed to learn the real value.
	NominalCapacityMAh float64

	// VoltMin and VoltMax bound the usable terminal voltage of the pack.
	VoltMin float64
	VoltMax float64

	// CriticalVoltage is surfaced as a distinct condition to shutdown
	// consumers. The estimator itself never acts on it.
	CriticalVoltage float64

	// ChargeCurrentThresholdMA is the noise floor for charge detection.
	// Signed current above it means the charger is connected.
	ChargeCurrentThresholdMA float64

	// SettleGracePeriod is how long voltage readings are distrusted after
	// the charger disconnects.
	SettleGracePeriod time.Duration

	// DriftStepPct is the percentage of the gap between the coulomb SOC and
	// the voltage SOC closed per sample while voltage is trusted.
	DriftStepPct float64

	// FullConfirmPct caps the reported SOC until the voltage estimate
	// independently confirms a value at or above it.
	FullConfirmPct float64

	// InternalResistanceOhms estimates pack internal resistance for load
	// compensation of voltage readings.
	InternalResistanceOhms float64

	// Curve maps open-circuit voltage to SOC percent for this chemistry.
	Curve DischargeCurve
}

// DefaultConfig returns the configuration for a 3S Li-ion pack.
func DefaultConfig() Config {
	return Config{
		NominalCapacityMAh:       3400,
		VoltMin:                  9.0,
		VoltMax:                  12.6,
		CriticalVoltage:          9.6,
		ChargeCurrentThresholdMA: 10,
		SettleGracePeriod:        5 * time.Minute,
		DriftStepPct:             0.2,
		FullConfirmPct:           90,
		InternalResistanceOhms:   0.1,
		Curve:                    DefaultLiIon3SCurve(),
	}
}

// Validate checks the configuration for values the estimator cannot work
// with.
func (c Config) Validate() error {
	if c.NominalCapacityMAh <= 0 {
		return fmt.Errorf("nominal capacity must be positive, got %.1f", c.NominalCapacityMAh)
	}
	if c.VoltMin >= c.VoltMax {
		return fmt.Errorf("volt_min %.2f must be below volt_max %.2f", c.VoltMin, c.VoltMax)
	}
	if c.CriticalVoltage < c.VoltMin || c.CriticalVoltage > c.VoltMax {
		return fmt.Errorf("critical voltage %.2f outside [%.2f, %.2f]", c.CriticalVoltage, c.VoltMin, c.VoltMax)
	}
	if c.SettleGracePeriod <= 0 {
		return fmt.Errorf("settle grace period must be positive, got %s", c.SettleGracePeriod)
	}
	if c.DriftStepPct <= 0 || c.DriftStepPct > 100 {
		return fmt.Errorf("drift step %.2f%% outside (0, 100]", c.DriftStepPct)
	}
	if c.FullConfirmPct <= 0 || c.FullConfirmPct > 100 {
		return fmt.Errorf("full confirm threshold %.2f%% outside (0, 100]", c.FullConfirmPct)
	}
	if c.InternalResistanceOhms < 0 {
		return fmt.Errorf("internal resistance must not be negative, got %.3f", c.InternalResistanceOhms)
	}
	if err := c.Curve.Validate(); err != nil {
		return fmt.Errorf("discharge curve: %w", err)
	}
	return nil
}
