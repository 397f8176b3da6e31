package soc

import "fmt"

// ChargeStatus classifies the sample stream into the estimator's
// charge-state machine.
type ChargeStatus uint8

const (
	// Discharging means net current outflow from the pack.
	Discharging ChargeStatus = iota
	// Charging means net current inflow above the noise threshold.
	Charging
	// Settling is the grace period right after a charge stops, while the
	// terminal voltage is still recovering and can't be trusted.
	Settling
	// Settled means the grace period has elapsed without charging resuming.
	Settled
)

func (s ChargeStatus) String() string {
	switch s {
	case Discharging:
		return "discharging"
	case Charging:
		return "charging"
	case Settling:
		return "settling"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// voltageTrusted reports whether the blend step may pull toward the
// voltage-derived SOC in this state. Voltage right after (or during) a
// charge over-reads the true rest voltage.
func (s ChargeStatus) voltageTrusted() bool {
	return s == Settled || s == Discharging
}

// MarshalText implements encoding.TextMarshaler for the persisted snapshot.
func (s ChargeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ChargeStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "discharging":
		*s = Discharging
	case "charging":
		*s = Charging
	case "settling":
		*s = Settling
	case "settled":
		*s = Settled
	default:
		return fmt.Errorf("unknown charge status %q", text)
	}
	return nil
}

// ParseChargeStatus converts a persisted status string back to its enum
// value. Unknown values map to Discharging, the safe default for a fresh
// start.
func ParseChargeStatus(text string) ChargeStatus {
	var s ChargeStatus
	if err := s.UnmarshalText([]byte(text)); err != nil {
		return Discharging
	}
	return s
}
