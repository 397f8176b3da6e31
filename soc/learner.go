package soc

import "math"

const (
	// minCycleMAh rejects cycles with too little charge throughput to say
	// anything about capacity.
	minCycleMAh = 500
	// minCycleSOCPct rejects cycles spanning too small a SOC swing.
	minCycleSOCPct = 20
	// capacityBoundRatio keeps the learned capacity within a sane band
	// around the nominal value, guarding against sensor glitches.
	capacityBoundRatio = 0.5
	// learnAlpha is the EWMA weight of a new capacity observation.
	learnAlpha = 0.2
)

// learner refines the pack capacity from observed charge/discharge cycles
// between calibration anchors (voltage pegged full or empty).
type learner struct {
	nominalMAh  float64
	capacityMAh float64
	confidence  int

	anchored      bool
	anchorSOC     float64
	throughputMAh float64
	direction     ChargeStatus // Charging or Discharging once the cycle picks one
	directionSet  bool
	interrupted   bool
}

func newLearner(nominalMAh, learnedMAh float64, confidence int) *learner {
	l := &learner{
		nominalMAh:  nominalMAh,
		capacityMAh: nominalMAh,
		confidence:  confidence,
	}
	if l.plausible(learnedMAh) {
		l.capacityMAh = learnedMAh
	}
	return l
}

// observe feeds every processed sample into the cycle tracker. deltaMAh is
// the charge actually accumulated for the sample. A status flip against the
// cycle direction marks the cycle interrupted; it will be discarded at the
// next anchor without touching the learned value.
func (l *learner) observe(status ChargeStatus, deltaMAh float64) {
	if !l.anchored {
		return
	}
	l.throughputMAh += math.Abs(deltaMAh)

	if status != Charging && status != Discharging {
		return
	}
	if !l.directionSet {
		l.direction = status
		l.directionSet = true
		return
	}
	if status != l.direction {
		l.interrupted = true
	}
}

// anchor records a calibration event at a known SOC. If the cycle since the
// previous anchor was clean and deep enough, the learned capacity is
// updated. Returns true when the learned value changed.
func (l *learner) anchor(atSOC float64) bool {
	updated := false
	if l.anchored && !l.interrupted {
		socDelta := math.Abs(atSOC - l.anchorSOC)
		if l.throughputMAh >= minCycleMAh && socDelta >= minCycleSOCPct {
			observed := l.throughputMAh / (socDelta / 100)
			if l.plausible(observed) {
				l.capacityMAh = l.capacityMAh*(1-learnAlpha) + observed*learnAlpha
				l.confidence++
				updated = true
			}
		}
	}

	l.anchored = true
	l.anchorSOC = atSOC
	l.throughputMAh = 0
	l.directionSet = false
	l.interrupted = false
	return updated
}

func (l *learner) plausible(capacityMAh float64) bool {
	return capacityMAh >= l.nominalMAh*(1-capacityBoundRatio) &&
		capacityMAh <= l.nominalMAh*(1+capacityBoundRatio)
}
