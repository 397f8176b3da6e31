package soc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurveKnownPoints(t *testing.T) {
	c := DefaultLiIon3SCurve()

	assert.Equal(t, 100.0, c.PercentAt(12.60))
	assert.Equal(t, 100.0, c.PercentAt(13.00))
	assert.Equal(t, 50.0, c.PercentAt(11.50))
	assert.Equal(t, 0.0, c.PercentAt(9.00))
	assert.Equal(t, 0.0, c.PercentAt(8.00))

	// Midpoint of the 12.50-12.60 segment.
	assert.InDelta(t, 97.5, c.PercentAt(12.55), 0.001)
}

func TestCurveMonotoneAndBounded(t *testing.T) {
	c := DefaultLiIon3SCurve()

	prev := -1.0
	for v := 8.5; v <= 13.0; v += 0.01 {
		pct := c.PercentAt(v)
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.LessOrEqual(t, pct, 100.0)
		assert.GreaterOrEqual(t, pct, prev, "curve must be non-decreasing at %.2fV", v)
		prev = pct
	}
}

func TestCurveInverse(t *testing.T) {
	c := DefaultLiIon3SCurve()

	for _, p := range c {
		assert.InDelta(t, p.Voltage, c.VoltageAt(p.Percent), 0.001)
	}
	assert.InDelta(t, 11.50, c.VoltageAt(50), 0.001)
	assert.Equal(t, 12.60, c.VoltageAt(150))
	assert.Equal(t, 9.00, c.VoltageAt(-5))
}

func TestCurveValidate(t *testing.T) {
	require.NoError(t, DefaultLiIon3SCurve().Validate())

	assert.Error(t, DischargeCurve{{12.6, 100}}.Validate())
	assert.Error(t, DischargeCurve{{12.6, 100}, {12.6, 90}}.Validate())
	assert.Error(t, DischargeCurve{{12.6, 90}, {12.0, 100}}.Validate())
	assert.Error(t, DischargeCurve{{12.6, 110}, {12.0, 90}}.Validate())
}
