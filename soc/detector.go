package soc

import "time"

// detector is the charge-state machine. It only looks at the signed current
// and the time since the last transition; voltage never drives it.
type detector struct {
	noiseThresholdMA float64
	gracePeriod      time.Duration

	status       ChargeStatus
	transitionAt time.Time
}

func newDetector(cfg Config, initial ChargeStatus, at time.Time) *detector {
	return &detector{
		noiseThresholdMA: cfg.ChargeCurrentThresholdMA,
		gracePeriod:      cfg.SettleGracePeriod,
		status:           initial,
		transitionAt:     at,
	}
}

// observe advances the state machine with a new sample and reports the
// resulting status and whether a transition happened.
//
// Transitions:
//
//	any         -> Charging     current above the noise threshold
//	Charging    -> Settling     charge current stops; grace timer starts
//	Settling    -> Settled      grace timer elapses without charge resuming
//	Settled     -> Discharging  net outflow once no settling timer is pending
//	Discharging -> Discharging  idle or outflow both stay put
func (d *detector) observe(s Sample) (ChargeStatus, bool) {
	prev := d.status

	if s.CurrentMA > d.noiseThresholdMA {
		d.status = Charging
	} else {
		switch d.status {
		case Charging:
			d.status = Settling
		case Settling:
			if s.Time.Sub(d.transitionAt) >= d.gracePeriod {
				d.status = Settled
			}
		case Settled:
			if s.CurrentMA < -d.noiseThresholdMA {
				d.status = Discharging
			}
		case Discharging:
			// Stays discharging. A near-zero current while unplugged is
			// still a discharge regime, just a slow one.
		}
	}

	changed := d.status != prev
	if changed {
		d.transitionAt = s.Time
	}
	return d.status, changed
}
