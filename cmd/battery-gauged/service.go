package main

import (
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/cyberboy-project/battery-gauge/soc"
)

const (
	dbusName = "org.cyberboy.battery"
	dbusPath = "/org/cyberboy/battery"
)

type service struct {
	conn      *dbus.Conn
	estimator *soc.Estimator
}

func startService(estimator *soc.Estimator) (*service, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}

	s := &service{
		conn:      conn,
		estimator: estimator,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return s, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// CurrentReading returns the latest estimate: SOC percent, charge status,
// seconds of runtime remaining, seconds until full, and the critical and
// stale flags. Time estimates are zero when no usable figure exists.
func (s *service) CurrentReading() (float64, string, int64, int64, bool, bool, *dbus.Error) {
	r := s.estimator.Reading()
	return r.SOCPct, r.Status.String(),
		int64(r.TimeRemaining.Seconds()), int64(r.TimeToFull.Seconds()),
		r.Critical, r.Stale, nil
}

// Voltage returns the last sampled pack voltage and current in mA.
func (s *service) Voltage() (float64, float64, *dbus.Error) {
	r := s.estimator.Reading()
	return r.Voltage, r.CurrentMA, nil
}

// Stats returns the capacity model: nominal and learned capacity in mAh,
// learning confidence, and the raw coulomb and voltage SOC estimates.
func (s *service) Stats() (float64, float64, int32, float64, float64, *dbus.Error) {
	st := s.estimator.Stats()
	return st.NominalCapacityMAh, st.LearnedCapacityMAh, int32(st.LearningConfidence),
		st.CoulombSOCPct, st.VoltageSOCPct, nil
}

func (s *service) emitReading(r soc.Reading) {
	if s == nil {
		return
	}
	if err := s.conn.Emit(dbusPath, dbusName+".Reading", r.SOCPct, r.Status.String()); err != nil {
		log.Errorf("Failed to emit reading signal: %v", err)
	}
}

func (s *service) emitCritical(r soc.Reading) {
	if s == nil {
		return
	}
	if err := s.conn.Emit(dbusPath, dbusName+".Critical", r.SOCPct, r.Voltage); err != nil {
		log.Errorf("Failed to emit critical signal: %v", err)
	}
}
