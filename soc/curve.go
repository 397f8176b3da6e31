package soc

import "fmt"

// CurvePoint is a single voltage/percent pair on a discharge curve.
type CurvePoint struct {
	Voltage float64
	Percent float64
}

// DischargeCurve maps open-circuit voltage to SOC percent for one pack
// chemistry. Points are ordered from full (highest voltage) to empty. The
// curve shape is a configuration input, not hardcoded to one chemistry.
type DischargeCurve []CurvePoint

// DefaultLiIon3SCurve returns the discharge curve for a 3S Li-ion pack,
// with extra points in the flat middle region where small voltage
// differences carry the most SOC information.
func DefaultLiIon3SCurve() DischargeCurve {
	return DischargeCurve{
		{12.60, 100}, {12.50, 95}, {12.40, 90}, {12.30, 85}, {12.20, 80},
		{12.00, 75}, {11.90, 70}, {11.80, 65}, {11.70, 60}, {11.60, 55},
		{11.50, 50}, {11.40, 45}, {11.30, 40}, {11.20, 35}, {11.10, 30},
		{11.00, 25}, {10.80, 20}, {10.60, 15}, {10.40, 10}, {10.20, 7},
		{10.00, 5}, {9.80, 3}, {9.60, 2}, {9.40, 1}, {9.00, 0},
	}
}

// Validate checks that the curve is usable for interpolation: at least two
// points, voltages strictly descending, percents non-increasing and within
// [0, 100].
func (c DischargeCurve) Validate() error {
	if len(c) < 2 {
		return fmt.Errorf("need at least 2 points, got %d", len(c))
	}
	for i, p := range c {
		if p.Percent < 0 || p.Percent > 100 {
			return fmt.Errorf("point %d percent %.1f outside [0, 100]", i, p.Percent)
		}
		if i == 0 {
			continue
		}
		if p.Voltage >= c[i-1].Voltage {
			return fmt.Errorf("point %d voltage %.2f not below previous %.2f", i, p.Voltage, c[i-1].Voltage)
		}
		if p.Percent > c[i-1].Percent {
			return fmt.Errorf("point %d percent %.1f above previous %.1f", i, p.Percent, c[i-1].Percent)
		}
	}
	return nil
}

// PercentAt converts a voltage to SOC percent by linear interpolation
// between curve points. Output is clamped to [0, 100].
func (c DischargeCurve) PercentAt(voltage float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if voltage >= c[0].Voltage {
		return c[0].Percent
	}
	last := c[len(c)-1]
	if voltage <= last.Voltage {
		return last.Percent
	}
	for i := 0; i < len(c)-1; i++ {
		high, low := c[i], c[i+1]
		if voltage <= high.Voltage && voltage >= low.Voltage {
			ratio := (voltage - low.Voltage) / (high.Voltage - low.Voltage)
			return clampPct(low.Percent + ratio*(high.Percent-low.Percent))
		}
	}
	return last.Percent
}

// VoltageAt converts a SOC percent back to the expected open-circuit
// voltage, the inverse of PercentAt for in-range values.
func (c DischargeCurve) VoltageAt(percent float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if percent >= c[0].Percent {
		return c[0].Voltage
	}
	last := c[len(c)-1]
	if percent <= last.Percent {
		return last.Voltage
	}
	for i := 0; i < len(c)-1; i++ {
		high, low := c[i], c[i+1]
		if percent <= high.Percent && percent >= low.Percent {
			if high.Percent == low.Percent {
				return low.Voltage
			}
			ratio := (percent - low.Percent) / (high.Percent - low.Percent)
			return low.Voltage + ratio*(high.Voltage-low.Voltage)
		}
	}
	return last.Voltage
}

func clampPct(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
