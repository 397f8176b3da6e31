/*
battery-status - prints the current battery estimate from battery-gauged
Copyright (C) 2026, The Cyberboy Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"fmt"
	"os"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cyberboy.battery"
	dbusPath = "/org/cyberboy/battery"
)

var version = "No version provided"

type argSpec struct {
	Stats bool `arg:"--stats" help:"Also print the capacity model and raw estimates"`
}

func (argSpec) Version() string {
	return version
}

func main() {
	var args argSpec
	arg.MustParse(&args)

	if err := run(args); err != nil {
		// Still emit a line so status bar scripts show something useful.
		fmt.Println("> N/A")
		os.Exit(1)
	}
}

func run(args argSpec) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object(dbusName, dbusPath)

	var (
		socPct          float64
		status          string
		remainSec       int64
		toFullSec       int64
		critical, stale bool
	)
	err = obj.Call(dbusName+".CurrentReading", 0).Store(
		&socPct, &status, &remainSec, &toFullSec, &critical, &stale)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("> %.0f%%", socPct)
	if status == "charging" {
		line += " CHG"
	}
	if critical {
		line += " CRITICAL"
	}
	if stale {
		line += " (stale)"
	}
	fmt.Println(line)

	if toFullSec > 0 {
		fmt.Printf("%s to full\n", formatDuration(time.Duration(toFullSec)*time.Second))
	} else if remainSec > 0 {
		fmt.Printf("%s remaining\n", formatDuration(time.Duration(remainSec)*time.Second))
	}

	if args.Stats {
		var (
			nominal, learned     float64
			confidence           int32
			coulombSOC, voltsSOC float64
		)
		err = obj.Call(dbusName+".Stats", 0).Store(
			&nominal, &learned, &confidence, &coulombSOC, &voltsSOC)
		if err != nil {
			return err
		}
		var voltage, currentMA float64
		err = obj.Call(dbusName+".Voltage", 0).Store(&voltage, &currentMA)
		if err != nil {
			return err
		}
		fmt.Printf("voltage: %.3fV, current: %.1fmA\n", voltage, currentMA)
		fmt.Printf("capacity: %.0fmAh learned (%.0fmAh nominal), confidence %d\n", learned, nominal, confidence)
		fmt.Printf("coulomb: %.1f%%, voltage curve: %.1f%%\n", coulombSOC, voltsSOC)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
