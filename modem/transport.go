package modem

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// Transport represents an established, bidirectional byte stream to one
// multiplexed channel of the modem.
//
// A Transport is assumed to be already connected and ready for use. Typical
// implementations include serial ports, mux sub-channel ttys, or in-memory
// fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a modem channel.
//
// Dialer abstracts how the connection is created (serial port, mux tty,
// test double) and is used during modem construction only.
type Dialer interface {
	// Dial creates and returns a connected Transport. It should respect
	// cancellation and deadlines provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// ModeSwitcher reconfigures the multiplexer so a channel carries either
// line-oriented AT traffic or raw session payload bound to iface.
type ModeSwitcher interface {
	SwitchMode(ctx context.Context, mode Mode, iface string) error
}

// inputFlusher is implemented by transports that can discard bytes already
// received but not yet read. go.bug.st/serial ports implement it.
type inputFlusher interface {
	ResetInputBuffer() error
}

// SerialDialer opens a modem channel over a serial device using
// go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, for example /dev/ttyACM0 or /dev/gsmtty3.
	PortName string
	// BaudRate is used when Mode is nil. Zero selects 115200.
	BaudRate int
	// Mode overrides the complete line configuration.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("modem: open %s: %w", d.PortName, err)
	}
	return port, nil
}

var _ inputFlusher = serial.Port(nil)
