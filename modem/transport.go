package modem

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mock_transport.go -package=modem . Transport,Dialer,ResetLine

// DefaultBaudRate is the SARA-N2 factory UART speed.
const DefaultBaudRate = 57600

// Transport represents an established, bidirectional byte stream to a
// SARA-N2 modem.
//
// A Transport is assumed to be already connected and ready for use. It provides
// the low-level I/O primitives required to send AT commands and receive responses.
// Typical implementations include serial ports or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is intended to be used during modem
// construction only. Once a Transport is obtained, the Dialer is no longer
// needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// ResetLine drives the modem hardware reset.
type ResetLine interface {
	Reset(ctx context.Context) error
}

// inputFlusher is implemented by transports that can discard bytes
// received but not yet read, such as serial.Port.
type inputFlusher interface {
	ResetInputBuffer() error
}

// SerialDialer opens the modem UART using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	// Mode defaults to DefaultBaudRate, 8-N-1.
	Mode *serial.Mode
}

var (
	errNoPortName = errors.New("nbiot: serial port name is required")
	errNilContext = errors.New("nbiot: context is nil")
)

// Dial opens the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errNilContext
	}
	if d.PortName == "" {
		return nil, errNoPortName
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: DefaultBaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", d.PortName, err)
	}
	return port, nil
}
