package main

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/cyberboy-project/battery-gauge/ina219"
	"github.com/cyberboy-project/battery-gauge/serialbms"
	"github.com/cyberboy-project/battery-gauge/soc"
)

// openSource builds the configured sample source. Sign convention is
// positive current while charging, so monitors wired the other way round
// set invert_current.
func openSource(conf *Config) (soc.SampleSource, error) {
	switch conf.Sensor.Type {
	case "ina219":
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		bus, err := i2creg.Open(conf.Sensor.I2CBus)
		if err != nil {
			return nil, fmt.Errorf("opening i2c bus %q: %w", conf.Sensor.I2CBus, err)
		}
		dev, err := ina219.New(bus, conf.Sensor.Address, conf.Sensor.ShuntOhms, conf.Sensor.MaxExpectedAmps)
		if err != nil {
			return nil, err
		}
		log.Infof("Reading from INA219 at 0x%X on bus %s", conf.Sensor.Address, conf.Sensor.I2CBus)
		return &ina219Source{dev: dev, invert: conf.Sensor.InvertCurrent}, nil
	case "serial":
		reader, err := serialbms.Open(conf.Sensor.SerialDevice, conf.Sensor.Baud)
		if err != nil {
			return nil, fmt.Errorf("opening serial BMS on %s: %w", conf.Sensor.SerialDevice, err)
		}
		log.Infof("Reading BMS frames from %s at %d baud", conf.Sensor.SerialDevice, conf.Sensor.Baud)
		return &serialSource{reader: reader, invert: conf.Sensor.InvertCurrent}, nil
	default:
		return nil, fmt.Errorf("unknown sensor type %q", conf.Sensor.Type)
	}
}

type ina219Source struct {
	dev    *ina219.Dev
	invert bool
}

func (s *ina219Source) Read() (soc.Sample, error) {
	voltage, err := s.dev.BusVoltage()
	if err != nil {
		return soc.Sample{}, err
	}
	currentMA, err := s.dev.CurrentMA()
	if err != nil {
		return soc.Sample{}, err
	}
	if s.invert {
		currentMA = -currentMA
	}
	return soc.Sample{Voltage: voltage, CurrentMA: currentMA, Time: time.Now()}, nil
}

type serialSource struct {
	reader *serialbms.Reader
	invert bool
}

func (s *serialSource) Read() (soc.Sample, error) {
	frame, err := s.reader.ReadFrame()
	if err != nil {
		return soc.Sample{}, err
	}
	currentMA := frame.CurrentMA
	if s.invert {
		currentMA = -currentMA
	}
	return soc.Sample{Voltage: frame.Voltage, CurrentMA: currentMA, Time: time.Now()}, nil
}
