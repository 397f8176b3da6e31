/*
battery-gauged - battery state of charge estimation daemon
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
	"errors"
	"fmt"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/cyberboy-project/battery-gauge/snapshot"
	"github.com/cyberboy-project/battery-gauge/soc"
)

const defaultConfigFile = "/etc/battery-gauge.yaml"

var version = "No version provided"

var log = logrus.New()

type argSpec struct {
	ConfigFile string `arg:"-c,--config" help:"Path to the configuration file"`
	LogLevel   string `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (argSpec) Version() string {
	return version
}

func procArgs() argSpec {
	args := argSpec{
		ConfigFile: defaultConfigFile,
	}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)

	log.Info("Running version: ", version)

	conf, err := loadConfig(args.ConfigFile)
	if err != nil {
		return err
	}

	store := snapshot.NewStore(conf.Daemon.StateFile)
	if err := store.Acquire(); err != nil {
		return fmt.Errorf("acquiring state file lock: %w", err)
	}
	defer store.Release()

	// A damaged or outdated state file is never fatal, estimation just
	// starts over from the voltage curve.
	snap, err := store.Load()
	if err != nil {
		if errors.Is(err, snapshot.ErrNotExist) {
			log.Info("No saved state found, starting fresh")
		} else {
			log.Warnf("Discarding saved state: %v", err)
		}
		snap = nil
	} else {
		log.Infof("Resuming from saved state: %.1f%% at %s", snap.BlendedSOCPct, snap.SavedAt)
	}

	estimator, err := soc.Resume(conf.estimatorConfig(), snap)
	if err != nil {
		return err
	}

	source, err := openSource(conf)
	if err != nil {
		return err
	}

	svc, err := startService(estimator)
	if err != nil {
		return err
	}

	loop := &pollLoop{
		estimator: estimator,
		source:    source,
		store:     store,
		conf:      conf.Daemon,
		svc:       svc,
	}
	return loop.run()
}
