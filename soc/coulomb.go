package soc

import "time"

// maxIntegrationGap bounds the elapsed time a single sample may integrate
// over. A gap longer than this means the daemon was down, not that the last
// known current flowed the whole time.
const maxIntegrationGap = 30 * time.Minute

// accumulator integrates current over elapsed time into a running charge
// value, bounded by the learned capacity.
type accumulator struct {
	chargeMAh    float64
	lastSampleAt time.Time
}

// integrate applies one sample and returns the signed charge delta (mAh)
// that was actually accumulated after clamping. A missed poll is "no data":
// lastSampleAt only moves on samples that arrive, so the elapsed base for
// the next successful sample accounts for the gap.
func (a *accumulator) integrate(s Sample, capacityMAh float64) float64 {
	if a.lastSampleAt.IsZero() {
		a.lastSampleAt = s.Time
		return 0
	}
	elapsed := s.Time.Sub(a.lastSampleAt)
	a.lastSampleAt = s.Time
	if elapsed <= 0 || elapsed > maxIntegrationGap {
		return 0
	}

	before := a.chargeMAh
	a.chargeMAh = clampCharge(a.chargeMAh+s.CurrentMA*elapsed.Hours(), capacityMAh)
	return a.chargeMAh - before
}

// socPct converts the accumulated charge to a percentage of capacity.
func (a *accumulator) socPct(capacityMAh float64) float64 {
	if capacityMAh <= 0 {
		return 0
	}
	return clampPct(a.chargeMAh / capacityMAh * 100)
}

// setSOC resets the accumulated charge to match a known SOC, used for
// full/empty calibration events and drift correction.
func (a *accumulator) setSOC(pct, capacityMAh float64) {
	a.chargeMAh = clampCharge(clampPct(pct)/100*capacityMAh, capacityMAh)
}

// rescale keeps the SOC percentage stable when the learned capacity
// changes.
func (a *accumulator) rescale(oldCapacityMAh, newCapacityMAh float64) {
	if oldCapacityMAh <= 0 {
		return
	}
	a.setSOC(a.chargeMAh/oldCapacityMAh*100, newCapacityMAh)
}

func clampCharge(mAh, capacityMAh float64) float64 {
	if mAh < 0 {
		return 0
	}
	if mAh > capacityMAh {
		return capacityMAh
	}
	return mAh
}
