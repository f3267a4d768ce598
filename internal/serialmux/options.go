package serialmux

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// PortOptions describes the serial connection parameters used when opening a
// real serial port. The fields mirror the JSON tuning configuration so the
// options can be passed through without additional translation.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`

	// ReadTimeout bounds each blocking Read when the opened port supports
	// timeouts. Zero leaves reads fully blocking.
	ReadTimeout time.Duration `json:"read_timeout,omitempty"`
}

// DataPortOptions returns the defaults for the sensor's binary data UART.
func DataPortOptions() PortOptions {
	return PortOptions{BaudRate: 921600, DataBits: 8, StopBits: 1, Parity: "N"}
}

// CommandPortOptions returns the defaults for the sensor's CLI config UART.
func CommandPortOptions() PortOptions {
	return PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
}

// Normalize validates the options and applies defaults for any unset values.
// The zero value normalizes to the data-port defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 921600
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	if parity == "" {
		parity = "N"
	}

	switch parity {
	case "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity

	if opts.ReadTimeout < 0 {
		return opts, fmt.Errorf("invalid read timeout %v: must not be negative", opts.ReadTimeout)
	}

	return opts, nil
}

// Equal reports whether two PortOptions describe the same serial configuration.
func (o PortOptions) Equal(other PortOptions) bool {
	normalizedA, errA := o.Normalize()
	normalizedB, errB := other.Normalize()
	if errA != nil || errB != nil {
		return false
	}

	return normalizedA.BaudRate == normalizedB.BaudRate &&
		normalizedA.DataBits == normalizedB.DataBits &&
		normalizedA.StopBits == normalizedB.StopBits &&
		normalizedA.Parity == normalizedB.Parity &&
		normalizedA.ReadTimeout == normalizedB.ReadTimeout
}

// SerialMode converts the port options into the serial.Mode structure required
// by go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}

	// The library enum starts at zero, so the count cannot be cast directly.
	switch opts.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", opts.StopBits)
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	return mode, nil
}
