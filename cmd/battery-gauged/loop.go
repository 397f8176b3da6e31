package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberboy-project/battery-gauge/snapshot"
	"github.com/cyberboy-project/battery-gauge/soc"
)

const (
	logRate          = 5 * time.Minute
	lowBatteryPct    = 10.0
	broadcastStepPct = 1.0
)

type pollLoop struct {
	estimator *soc.Estimator
	source    soc.SampleSource
	store     *snapshot.Store
	conf      DaemonConfig
	svc       *service

	lastSave      time.Time
	lastLogTime   time.Time
	lastBroadcast float64
}

// run polls the sensor until the process is told to stop, saving state on
// the way out so a clean shutdown loses nothing.
func (l *pollLoop) run() error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(l.conf.PollInterval)
	defer ticker.Stop()

	l.lastSave = time.Now()
	l.lastBroadcast = -1

	for {
		select {
		case <-ticker.C:
			l.step()
		case sig := <-sigs:
			log.Infof("Received %s, saving state and exiting", sig)
			l.save()
			return nil
		}
	}
}

// step performs one poll cycle. Sensor failures keep the previous estimate
// and mark it stale; a failed read never moves the charge accumulator.
func (l *pollLoop) step() {
	sample, err := l.readSample()
	if err != nil {
		log.Errorf("Keeping previous estimate: %v", err)
		l.estimator.MarkStale()
		return
	}

	reading, significant := l.estimator.ProcessSample(sample)

	if time.Since(l.lastLogTime) > logRate {
		log.Infof("SOC: %.1f%%, %s, %.3fV, %.1fmA", reading.SOCPct, reading.Status, reading.Voltage, reading.CurrentMA)
		l.lastLogTime = time.Now()
	} else {
		log.Debugf("SOC: %.1f%%, %s, %.3fV, %.1fmA", reading.SOCPct, reading.Status, reading.Voltage, reading.CurrentMA)
	}

	if reading.Critical {
		log.Errorf("Battery voltage critical: %.3fV at %.1f%%", reading.Voltage, reading.SOCPct)
		l.svc.emitCritical(reading)
	} else if reading.SOCPct <= lowBatteryPct && reading.Status == soc.Discharging {
		log.Warnf("Battery low: %.1f%%", reading.SOCPct)
	}

	if significant || l.lastBroadcast < 0 || absDiff(reading.SOCPct, l.lastBroadcast) >= broadcastStepPct {
		l.svc.emitReading(reading)
		l.lastBroadcast = reading.SOCPct
	}

	if significant || time.Since(l.lastSave) >= l.conf.SaveInterval {
		l.save()
	}
}

func (l *pollLoop) save() {
	snap := l.estimator.Snapshot()
	if err := l.store.Save(&snap); err != nil {
		log.Errorf("Failed to save state: %v", err)
		return
	}
	l.lastSave = time.Now()
}

// readSample tries the sensor a bounded number of times before giving up on
// this cycle.
func (l *pollLoop) readSample() (soc.Sample, error) {
	var lastErr error
	for attempt := 0; attempt < l.conf.ReadRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(l.conf.RetryInterval)
		}
		sample, err := l.source.Read()
		if err == nil {
			return sample, nil
		}
		lastErr = err
		log.Debugf("Sensor read attempt %d failed: %v", attempt+1, err)
	}
	return soc.Sample{}, fmt.Errorf("sensor read failed after %d attempts: %w", l.conf.ReadRetries, lastErr)
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
