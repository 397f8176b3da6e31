// Package ina219 drives the INA219 current/power monitor over I2C. It
// provides the raw voltage and signed current samples the estimator
// consumes; calibration of the measurement hardware itself is out of scope.
package ina219

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"
)

type register byte

const (
	regConfig      register = 0x00
	regShuntVolt   register = 0x01
	regBusVolt     register = 0x02
	regPower       register = 0x03
	regCurrent     register = 0x04
	regCalibration register = 0x05
)

const (
	// DefaultAddress is the INA219 address with A0/A1 strapped per the
	// cyberboy carrier board.
	DefaultAddress = 0x41

	// Config: 32 V bus range, /8 shunt gain (320 mV), 12-bit conversions
	// on both channels, continuous shunt+bus mode.
	configBusRange32V    = 1 << 13
	configGainDiv8       = 3 << 11
	configBusADC12Bit    = 3 << 7
	configShuntADC12Bit  = 3 << 3
	configModeContinuous = 7

	busVoltageLSB = 0.004 // V per bit, after the 3-bit status shift
)

// Dev is a handle to a configured INA219.
type Dev struct {
	dev        *i2c.Dev
	currentLSB float64 // A per bit of the current register
}

// New configures the sensor for continuous conversion and programs the
// calibration register from the shunt value and the largest current the
// installation expects to see.
func New(bus i2c.Bus, addr uint16, shuntOhms, maxExpectedAmps float64) (*Dev, error) {
	if shuntOhms <= 0 {
		return nil, fmt.Errorf("shunt resistance must be positive, got %.3f", shuntOhms)
	}
	if maxExpectedAmps <= 0 {
		return nil, fmt.Errorf("max expected current must be positive, got %.3f", maxExpectedAmps)
	}

	d := &Dev{
		dev:        &i2c.Dev{Bus: bus, Addr: addr},
		currentLSB: currentLSB(maxExpectedAmps),
	}

	config := uint16(configBusRange32V | configGainDiv8 | configBusADC12Bit |
		configShuntADC12Bit | configModeContinuous)
	if err := d.writeRegister(regConfig, config); err != nil {
		return nil, fmt.Errorf("configuring INA219 at 0x%X: %w", addr, err)
	}
	if err := d.writeRegister(regCalibration, calibration(d.currentLSB, shuntOhms)); err != nil {
		return nil, fmt.Errorf("calibrating INA219 at 0x%X: %w", addr, err)
	}
	return d, nil
}

// BusVoltage reads the pack terminal voltage in volts.
func (d *Dev) BusVoltage() (float64, error) {
	raw, err := d.readRegister(regBusVolt)
	if err != nil {
		return 0, fmt.Errorf("reading bus voltage: %w", err)
	}
	// Bit 0 is the overflow flag; a set flag means the current reading is
	// garbage even though voltage is still valid.
	if raw&0x01 != 0 {
		return 0, fmt.Errorf("INA219 math overflow, bus voltage register 0x%04X", raw)
	}
	return float64(raw>>3) * busVoltageLSB, nil
}

// CurrentMA reads the signed shunt current in milliamps. The sign follows
// the sensor wiring: current into IN+ reads positive.
func (d *Dev) CurrentMA() (float64, error) {
	raw, err := d.readRegister(regCurrent)
	if err != nil {
		return 0, fmt.Errorf("reading current: %w", err)
	}
	return float64(int16(raw)) * d.currentLSB * 1000, nil
}

func (d *Dev) readRegister(reg register) (uint16, error) {
	var buf [2]byte
	if err := d.dev.Tx([]byte{byte(reg)}, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func (d *Dev) writeRegister(reg register, value uint16) error {
	_, err := d.dev.Write([]byte{byte(reg), byte(value >> 8), byte(value & 0xFF)})
	return err
}

// currentLSB sizes the current register so maxExpectedAmps spans the
// signed 15-bit range.
func currentLSB(maxExpectedAmps float64) float64 {
	return maxExpectedAmps / (1 << 15)
}

// calibration computes the calibration register value from the datasheet
// formula: trunc(0.04096 / (currentLSB * Rshunt)).
func calibration(currentLSB, shuntOhms float64) uint16 {
	return uint16(math.Trunc(0.04096 / (currentLSB * shuntOhms)))
}
