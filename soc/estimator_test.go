package soc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberboy-project/battery-gauge/snapshot"
)

func TestEstimatorSeedsFromFirstVoltage(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)

	reading, _ := e.ProcessSample(Sample{Voltage: 11.5, CurrentMA: 0, Time: time.Now()})
	assert.InDelta(t, 50, reading.SOCPct, 0.5)
	assert.Equal(t, Discharging, reading.Status)
	assert.False(t, reading.Critical)
}

func TestEstimatorDischargeScenario(t *testing.T) {
	// Pack at 12.6 V idle reads ~100%; 5 minutes at 500 mA on a 3400 mAh
	// pack leaves ~3358 mAh, tracked smoothly.
	cfg := DefaultConfig()
	e, err := New(cfg)
	require.NoError(t, err)
	t0 := time.Now()

	reading, _ := e.ProcessSample(Sample{Voltage: 12.6, CurrentMA: 0, Time: t0})
	assert.InDelta(t, 100, reading.SOCPct, 0.01)

	prev := reading.SOCPct
	for i := 1; i <= 60; i++ {
		// Terminal voltage: open-circuit voltage for the current SOC minus
		// the sag from 500 mA of load.
		terminal := cfg.Curve.VoltageAt(prev) + (-500.0/1000)*cfg.InternalResistanceOhms
		reading, _ = e.ProcessSample(Sample{
			Voltage:   terminal,
			CurrentMA: -500,
			Time:      t0.Add(time.Duration(i) * 5 * time.Second),
		})
		assert.LessOrEqual(t, reading.SOCPct, prev)
		assert.Less(t, prev-reading.SOCPct, 0.1, "SOC must move smoothly, no cliffs")
		prev = reading.SOCPct
	}

	snap := e.Snapshot()
	assert.InDelta(t, 3400-500.0/12, snap.AccumulatedChargeMAh, 1.5)
	assert.InDelta(t, 98.8, reading.SOCPct, 0.2)
}

func TestEstimatorNoCliffAtChargerUnplug(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(cfg)
	require.NoError(t, err)
	t0 := time.Now()

	// Charge for a minute. Terminal voltage is inflated by the charger.
	var prev Reading
	for i := 0; i <= 12; i++ {
		prev, _ = e.ProcessSample(Sample{Voltage: 12.4, CurrentMA: 800, Time: t0.Add(time.Duration(i) * 5 * time.Second)})
	}
	assert.Equal(t, Charging, prev.Status)

	// Unplug: voltage sags immediately, but settling ignores it, so the
	// reported SOC must not jump.
	reading, _ := e.ProcessSample(Sample{Voltage: 11.8, CurrentMA: 0, Time: t0.Add(65 * time.Second)})
	assert.Equal(t, Settling, reading.Status)
	assert.InDelta(t, prev.SOCPct, reading.SOCPct, 0.1)

	// And it stays put through the whole grace period.
	reading, _ = e.ProcessSample(Sample{Voltage: 11.8, CurrentMA: -2, Time: t0.Add(65*time.Second + 4*time.Minute)})
	assert.Equal(t, Settling, reading.Status)
	assert.InDelta(t, prev.SOCPct, reading.SOCPct, 0.1)
}

func TestEstimatorConvergesWithoutOvershoot(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Now()
	e, err := Resume(cfg, &snapshot.Snapshot{
		SchemaVersion:        snapshot.SchemaVersion,
		LearnedCapacityMAh:   3400,
		AccumulatedChargeMAh: 2720, // 80%
		BlendedSOCPct:        80,
		ChargeStatus:         "settled",
		LastSampleAt:         t0,
	})
	require.NoError(t, err)

	// Constant 11.5 V (50% on the curve) while settled: the blended SOC
	// must walk down toward 50 monotonically and never cross it.
	prev := 80.0
	var last float64
	for i := 1; i <= 500; i++ {
		reading, _ := e.ProcessSample(Sample{Voltage: 11.5, CurrentMA: 0, Time: t0.Add(time.Duration(i) * 5 * time.Second)})
		assert.Equal(t, Settled, reading.Status)
		assert.LessOrEqual(t, reading.SOCPct, prev)
		assert.GreaterOrEqual(t, reading.SOCPct, 50.0)
		prev = reading.SOCPct
		last = reading.SOCPct
	}
	// 500 steps of 0.2% of the gap: 80 - 30*(1-0.998^500) = ~61.1
	assert.InDelta(t, 61.1, last, 1.0)
}

func TestEstimatorFullConfirmationCap(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Now()
	e, err := Resume(cfg, &snapshot.Snapshot{
		SchemaVersion:        snapshot.SchemaVersion,
		LearnedCapacityMAh:   3400,
		AccumulatedChargeMAh: 3230, // 95% of coulomb overshoot
		BlendedSOCPct:        95,
		ChargeStatus:         "discharging",
		LastSampleAt:         t0,
	})
	require.NoError(t, err)

	// Voltage says 75%: the report is capped at the confirmation
	// threshold even though the coulomb counter reads 95%.
	reading, _ := e.ProcessSample(Sample{Voltage: 12.0, CurrentMA: -200, Time: t0.Add(5 * time.Second)})
	assert.Equal(t, cfg.FullConfirmPct, reading.SOCPct)

	// One confirming voltage sample lifts the cap.
	reading, _ = e.ProcessSample(Sample{Voltage: 12.55, CurrentMA: -200, Time: t0.Add(10 * time.Second)})
	assert.Greater(t, reading.SOCPct, cfg.FullConfirmPct)
}

func TestEstimatorCriticalCondition(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Now()
	e, err := Resume(cfg, &snapshot.Snapshot{
		SchemaVersion:        snapshot.SchemaVersion,
		LearnedCapacityMAh:   3400,
		AccumulatedChargeMAh: 680, // 20%
		BlendedSOCPct:        20,
		ChargeStatus:         "discharging",
		LastSampleAt:         t0,
	})
	require.NoError(t, err)

	reading, _ := e.ProcessSample(Sample{Voltage: 9.5, CurrentMA: -400, Time: t0.Add(5 * time.Second)})
	assert.True(t, reading.Critical)
	// Voltage pegged at the empty end recalibrates the coulomb counter.
	assert.Less(t, reading.SOCPct, 5.0)
}

func TestEstimatorRuntimeEstimates(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Now()
	e, err := Resume(cfg, &snapshot.Snapshot{
		SchemaVersion:        snapshot.SchemaVersion,
		LearnedCapacityMAh:   3400,
		AccumulatedChargeMAh: 1700,
		BlendedSOCPct:        50,
		ChargeStatus:         "discharging",
		LastSampleAt:         t0,
	})
	require.NoError(t, err)

	var reading Reading
	for i := 1; i <= 10; i++ {
		terminal := cfg.Curve.VoltageAt(50) - 0.05
		reading, _ = e.ProcessSample(Sample{Voltage: terminal, CurrentMA: -500, Time: t0.Add(time.Duration(i) * 5 * time.Second)})
	}
	// ~1700 mAh left at 500 mA is about 3.4 hours.
	assert.InDelta(t, 3.4, reading.TimeRemaining.Hours(), 0.1)
	assert.Zero(t, reading.TimeToFull)

	// While charging the discharge estimate is omitted.
	for i := 11; i <= 20; i++ {
		reading, _ = e.ProcessSample(Sample{Voltage: 12.2, CurrentMA: 800, Time: t0.Add(time.Duration(i) * 5 * time.Second)})
	}
	assert.Zero(t, reading.TimeRemaining)
	assert.Greater(t, reading.TimeToFull, time.Duration(0))
}

func TestEstimatorIdleDrawGivesNoEstimate(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(cfg)
	require.NoError(t, err)
	t0 := time.Now()

	var reading Reading
	for i := 0; i <= 5; i++ {
		reading, _ = e.ProcessSample(Sample{Voltage: 11.5, CurrentMA: -5, Time: t0.Add(time.Duration(i) * 5 * time.Second)})
	}
	assert.Zero(t, reading.TimeRemaining)
}

func TestEstimatorStaleMarking(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	t0 := time.Now()

	e.ProcessSample(Sample{Voltage: 11.5, CurrentMA: -100, Time: t0})
	assert.False(t, e.Reading().Stale)

	e.MarkStale()
	assert.True(t, e.Reading().Stale)

	// A successful sample clears staleness.
	e.ProcessSample(Sample{Voltage: 11.5, CurrentMA: -100, Time: t0.Add(5 * time.Second)})
	assert.False(t, e.Reading().Stale)
}

func TestEstimatorTransitionIsSignificant(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	t0 := time.Now()

	_, significant := e.ProcessSample(Sample{Voltage: 11.5, CurrentMA: -100, Time: t0})
	assert.False(t, significant)

	_, significant = e.ProcessSample(Sample{Voltage: 11.8, CurrentMA: 500, Time: t0.Add(5 * time.Second)})
	assert.True(t, significant, "charge transition should trigger a save")

	_, significant = e.ProcessSample(Sample{Voltage: 11.8, CurrentMA: 500, Time: t0.Add(10 * time.Second)})
	assert.False(t, significant)
}

func TestEstimatorSnapshotResume(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(cfg)
	require.NoError(t, err)
	t0 := time.Now()

	for i := 0; i <= 20; i++ {
		terminal := cfg.Curve.VoltageAt(60) - 0.03
		e.ProcessSample(Sample{Voltage: terminal, CurrentMA: -300, Time: t0.Add(time.Duration(i) * 5 * time.Second)})
	}

	snap := e.Snapshot()
	resumed, err := Resume(cfg, &snap)
	require.NoError(t, err)

	got := resumed.Snapshot()
	assert.InDelta(t, snap.AccumulatedChargeMAh, got.AccumulatedChargeMAh, 1e-9)
	assert.InDelta(t, snap.BlendedSOCPct, got.BlendedSOCPct, 1e-9)
	assert.Equal(t, snap.ChargeStatus, got.ChargeStatus)
	assert.Equal(t, snap.LearnedCapacityMAh, got.LearnedCapacityMAh)
	assert.True(t, snap.LastSampleAt.Equal(got.LastSampleAt))
}
