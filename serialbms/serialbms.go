// Package serialbms reads voltage/current frames from a UART-attached BMS
// front end, for installations where the I2C sensor is not reachable from
// the host. Frames are single lines of the form
//
//	V=12.483,I=-512.5*3C
//
// where the trailing hex byte is a CRC-8 over everything before the '*'.
package serialbms

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/sigurn/crc8"
	"github.com/tarm/serial"
)

const cmdlineFile = "/boot/firmware/cmdline.txt"

var errBadCRC = errors.New("bad crc")

// Same CRC-8 parameters the sensor firmware uses (poly 0x31, init 0xFF).
var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

// Frame is one decoded BMS report.
type Frame struct {
	Voltage   float64 // V
	CurrentMA float64 // mA, signed, positive = charging
}

// Reader reads frames from a serial port. The port is held under an
// exclusive flock for the lifetime of the Reader.
type Reader struct {
	port     *serial.Port
	br       *bufio.Reader
	lockFile *os.File
}

// serialInUseFromTerminal reports whether the kernel console is attached to
// the primary UART, in which case our reads would interleave with console
// traffic.
func serialInUseFromTerminal() bool {
	b, err := os.ReadFile(cmdlineFile)
	if err != nil {
		return false
	}
	return strings.Contains(string(b), "console=serial0")
}

// Open locks and opens the serial device and wraps it in a line reader.
func Open(device string, baud int) (*Reader, error) {
	if serialInUseFromTerminal() {
		return nil, errors.New("serial is in use by the terminal console")
	}

	lockFile, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("locking %s, might be in use by another process: %w", device, err)
	}

	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}
	return &Reader{port: port, br: bufio.NewReader(port), lockFile: lockFile}, nil
}

// ReadFrame blocks until a full line arrives and decodes it. A corrupt
// frame returns an error; the caller retries or treats the poll as missed.
func (r *Reader) ReadFrame() (Frame, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return Frame{}, err
	}
	return ParseFrame(line)
}

func (r *Reader) Close() error {
	err := r.port.Close()
	syscall.Flock(int(r.lockFile.Fd()), syscall.LOCK_UN)
	if cerr := r.lockFile.Close(); err == nil {
		err = cerr
	}
	return err
}

// ParseFrame decodes and checksums one frame line.
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimSpace(line)

	payload, crcHex, found := strings.Cut(line, "*")
	if !found {
		return Frame{}, fmt.Errorf("frame %q has no checksum", line)
	}
	want, err := strconv.ParseUint(crcHex, 16, 8)
	if err != nil {
		return Frame{}, fmt.Errorf("frame %q checksum: %w", line, err)
	}
	if got := crc8.Checksum([]byte(payload), crcTable); got != byte(want) {
		return Frame{}, fmt.Errorf("frame %q: %w: got 0x%02X, want 0x%02X", line, errBadCRC, got, byte(want))
	}

	var frame Frame
	var haveV, haveI bool
	for _, field := range strings.Split(payload, ",") {
		key, value, found := strings.Cut(field, "=")
		if !found {
			return Frame{}, fmt.Errorf("frame %q: bad field %q", line, field)
		}
		switch key {
		case "V":
			frame.Voltage, err = strconv.ParseFloat(value, 64)
			haveV = err == nil
		case "I":
			frame.CurrentMA, err = strconv.ParseFloat(value, 64)
			haveI = err == nil
		default:
			// Firmware may add fields; ignore what we don't know.
			continue
		}
		if err != nil {
			return Frame{}, fmt.Errorf("frame %q: field %q: %w", line, field, err)
		}
	}
	if !haveV || !haveI {
		return Frame{}, fmt.Errorf("frame %q missing V or I", line)
	}
	return frame, nil
}
