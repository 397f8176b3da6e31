// Package soc implements hybrid state-of-charge estimation for a battery
// pack: coulomb counting for smooth tracking, voltage calibration to correct
// drift, and capacity learning from observed charge/discharge cycles.
package soc

import (
	"math"
	"sync"
	"time"

	"github.com/cyberboy-project/battery-gauge/snapshot"
)

const (
	// recentDrawWindow is how many recent current samples feed the
	// smoothed draw used for runtime estimates (~5 min at 5 s polls).
	recentDrawWindow = 60
	// minDrawForEstimateMA suppresses runtime estimates at idle draw.
	minDrawForEstimateMA = 30
	// maxRuntimeEstimate rejects implausible runtime estimates.
	maxRuntimeEstimate = 50 * time.Hour
	// fullCalVoltageMargin is how close to volt_max the compensated
	// voltage must sit to count as pegged full.
	fullCalVoltageMargin = 0.1
	// fullCalIdleCurrentMA is the most current allowed during a full
	// calibration; a loaded pack at volt_max is still charging, not full.
	fullCalIdleCurrentMA = 100
)

// Sample is one voltage/current reading from the sensor. Positive current
// means charge flowing into the pack.
type Sample struct {
	Voltage   float64 // V
	CurrentMA float64 // mA, signed, positive = charging
	Time      time.Time
}

// Reading is the estimator output handed to status and shutdown consumers.
type Reading struct {
	SOCPct    float64
	Status    ChargeStatus
	Critical  bool // voltage at or below the configured critical threshold
	Stale     bool // last poll(s) failed; values are from an earlier sample
	Voltage   float64
	CurrentMA float64
	// TimeRemaining estimates runtime left from remaining charge and the
	// smoothed recent draw. Zero while charging or when no usable estimate
	// exists.
	TimeRemaining time.Duration
	// TimeToFull estimates charge time left. Zero unless charging.
	TimeToFull time.Duration
	At         time.Time
}

// Stats exposes the capacity model for status consumers.
type Stats struct {
	NominalCapacityMAh float64
	LearnedCapacityMAh float64
	LearningConfidence int
	CoulombSOCPct      float64
	VoltageSOCPct      float64
}

// Estimator owns the estimator state exclusively. The polling loop is the
// only writer; the mutex exists so IPC service goroutines can read the last
// reading and stats concurrently.
type Estimator struct {
	mu  sync.Mutex
	cfg Config

	det *detector
	acc accumulator
	lrn *learner

	initialized   bool
	fullConfirmed bool
	voltSOC       float64
	blendedSOC    float64
	recentDraw    []float64
	lastReading   Reading
}

// New creates an estimator that starts from defaults: nominal capacity, no
// learned cycles, SOC seeded from the first voltage reading.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{
		cfg: cfg,
		det: newDetector(cfg, Discharging, time.Time{}),
		lrn: newLearner(cfg.NominalCapacityMAh, 0, 0),
	}, nil
}

// Resume creates an estimator continuing from a persisted snapshot. A nil
// snapshot behaves like New. Out-of-band snapshot values (capacity outside
// the sane band, SOC outside [0,100]) are clamped or replaced by defaults
// rather than rejected.
func Resume(cfg Config, snap *snapshot.Snapshot) (*Estimator, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return e, nil
	}

	e.lrn = newLearner(cfg.NominalCapacityMAh, snap.LearnedCapacityMAh, snap.LearningConfidence)
	e.det = newDetector(cfg, ParseChargeStatus(snap.ChargeStatus), snap.LastSampleAt)
	e.acc.chargeMAh = clampCharge(snap.AccumulatedChargeMAh, e.lrn.capacityMAh)
	e.acc.lastSampleAt = snap.LastSampleAt
	e.blendedSOC = clampPct(snap.BlendedSOCPct)
	e.initialized = !snap.LastSampleAt.IsZero()
	return e, nil
}

// ProcessSample advances the estimator with one sample and returns the
// reported reading. The second result is true when something worth
// persisting happened: a state-machine transition or a capacity-learning
// update.
func (e *Estimator) ProcessSample(s Sample) (Reading, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	status, transitioned := e.det.observe(s)
	significant := transitioned

	// Load compensation: approximate open-circuit voltage before the curve
	// lookup so SOC isn't depressed by instantaneous sag.
	ocv := s.Voltage - s.CurrentMA/1000*e.cfg.InternalResistanceOhms
	e.voltSOC = e.cfg.Curve.PercentAt(ocv)

	if !e.initialized {
		// No persisted state: seed the coulomb counter from voltage.
		e.acc.setSOC(e.voltSOC, e.capacity())
		e.acc.lastSampleAt = s.Time
		e.initialized = true
	}

	delta := e.acc.integrate(s, e.capacity())
	e.lrn.observe(status, delta)

	// Full/empty calibration: voltage pegged at either end of the range
	// resets the accumulator to the voltage SOC and anchors the learner.
	switch {
	case status == Settled && ocv >= e.cfg.VoltMax-fullCalVoltageMargin &&
		math.Abs(s.CurrentMA) < fullCalIdleCurrentMA:
		if e.lrn.anchor(e.voltSOC) {
			significant = true
		}
		e.acc.setSOC(e.voltSOC, e.capacity())
	case status == Discharging && ocv <= e.cfg.CriticalVoltage:
		if e.lrn.anchor(e.voltSOC) {
			significant = true
		}
		e.acc.setSOC(e.voltSOC, e.capacity())
	}

	// Drift correction: close a fixed fraction of the gap toward the
	// voltage SOC per sample, but only while voltage is trusted. The
	// correction feeds back into the accumulator so the coulomb counter
	// itself stays calibrated.
	coulombSOC := e.acc.socPct(e.capacity())
	if status.voltageTrusted() {
		coulombSOC += (e.voltSOC - coulombSOC) * e.cfg.DriftStepPct / 100
		e.acc.setSOC(coulombSOC, e.capacity())
	}

	// Anti-overshoot cap: never report above the confirmation threshold
	// unless the voltage estimate has confirmed it since the last time the
	// reported value sat below the threshold.
	if e.voltSOC >= e.cfg.FullConfirmPct {
		e.fullConfirmed = true
	}
	reported := coulombSOC
	if !e.fullConfirmed && reported > e.cfg.FullConfirmPct {
		reported = e.cfg.FullConfirmPct
	}
	if reported < e.cfg.FullConfirmPct {
		e.fullConfirmed = false
	}
	e.blendedSOC = clampPct(reported)

	e.trackDraw(status, transitioned, s.CurrentMA)

	reading := Reading{
		SOCPct:    e.blendedSOC,
		Status:    status,
		Critical:  s.Voltage <= e.cfg.CriticalVoltage,
		Voltage:   s.Voltage,
		CurrentMA: s.CurrentMA,
		At:        s.Time,
	}
	if status == Charging {
		reading.TimeToFull = e.runtimeEstimate(e.capacity() - e.acc.chargeMAh)
	} else {
		reading.TimeRemaining = e.runtimeEstimate(e.acc.chargeMAh)
	}
	e.lastReading = reading
	return reading, significant
}

// MarkStale flags the last reading after an exhausted poll so consumers see
// "stale" rather than wrong.
func (e *Estimator) MarkStale() {
	e.mu.Lock()
	e.lastReading.Stale = true
	e.mu.Unlock()
}

// Reading returns the most recent reported reading.
func (e *Estimator) Reading() Reading {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReading
}

// Stats returns the current capacity model and both SOC estimates.
func (e *Estimator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		NominalCapacityMAh: e.cfg.NominalCapacityMAh,
		LearnedCapacityMAh: e.lrn.capacityMAh,
		LearningConfidence: e.lrn.confidence,
		CoulombSOCPct:      e.acc.socPct(e.capacity()),
		VoltageSOCPct:      e.voltSOC,
	}
}

// Snapshot captures the state needed to resume after a restart.
func (e *Estimator) Snapshot() snapshot.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot.Snapshot{
		NominalCapacityMAh:   e.cfg.NominalCapacityMAh,
		LearnedCapacityMAh:   e.lrn.capacityMAh,
		LearningConfidence:   e.lrn.confidence,
		AccumulatedChargeMAh: e.acc.chargeMAh,
		BlendedSOCPct:        e.blendedSOC,
		ChargeStatus:         e.det.status.String(),
		LastSampleAt:         e.acc.lastSampleAt,
	}
}

func (e *Estimator) capacity() float64 {
	return e.lrn.capacityMAh
}

// trackDraw maintains the smoothing window behind runtime estimates. The
// window restarts when the pack switches between charging and discharging
// so one regime's current never skews the other's estimate.
func (e *Estimator) trackDraw(status ChargeStatus, transitioned bool, currentMA float64) {
	if transitioned && (status == Charging || status == Discharging) {
		e.recentDraw = e.recentDraw[:0]
	}
	e.recentDraw = append(e.recentDraw, math.Abs(currentMA))
	if len(e.recentDraw) > recentDrawWindow {
		e.recentDraw = e.recentDraw[1:]
	}
}

func (e *Estimator) runtimeEstimate(mAh float64) time.Duration {
	if len(e.recentDraw) == 0 {
		return 0
	}
	var sum float64
	for _, d := range e.recentDraw {
		sum += d
	}
	draw := sum / float64(len(e.recentDraw))
	if draw < minDrawForEstimateMA {
		return 0
	}
	estimate := time.Duration(mAh / draw * float64(time.Hour))
	if estimate < 0 || estimate > maxRuntimeEstimate {
		return 0
	}
	return estimate
}
