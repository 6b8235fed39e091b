// Package board describes the carrier boards a SARA-N2 modem is fitted to
// and drives the modem's control lines over the host GPIO.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stianeikeland/go-rpio"
)

// Board identifies a supported carrier board.
type Board int

const (
	Undefined Board = iota
	WrightV1_0_0
	DevelopmentBoardV1_1_0
)

var ErrUnknownBoard = errors.New("unknown board")

func (b Board) String() string {
	switch b {
	case WrightV1_0_0:
		return "wright-v1.0.0"
	case DevelopmentBoardV1_1_0:
		return "devboard-v1.1.0"
	default:
		return "undefined"
	}
}

// Parse returns the board named s, as printed by Board.String.
func Parse(s string) (Board, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wright-v1.0.0", "wright_v1_0_0":
		return WrightV1_0_0, nil
	case "devboard-v1.1.0", "development_board_v1_1_0":
		return DevelopmentBoardV1_1_0, nil
	default:
		return Undefined, fmt.Errorf("%w: %q", ErrUnknownBoard, s)
	}
}

// Pins holds the BCM GPIO numbers wired to the modem control lines.
type Pins struct {
	// Reset drives the modem RESET_N line, active low.
	Reset uint8
	// VInt senses the modem V_INT output, high while the modem is powered.
	VInt uint8
	// GPIO1 is wired to the modem GPIO1, configured as the power-mode indicator.
	GPIO1 uint8
}

// Pins returns the pin map of the board.
// TODO: confirm both maps against the board schematics.
func (b Board) Pins() (Pins, error) {
	switch b {
	case WrightV1_0_0:
		return Pins{Reset: 24, VInt: 23, GPIO1: 25}, nil
	case DevelopmentBoardV1_1_0:
		return Pins{Reset: 16, VInt: 20, GPIO1: 21}, nil
	default:
		return Pins{}, ErrUnknownBoard
	}
}

// Timings of the reset pulse. The modem needs the line held low for at
// least 100ms and takes a few seconds to start accepting commands.
const (
	ResetPulse  = 250 * time.Millisecond
	ResetSettle = 5 * time.Second
)

type line interface {
	Output()
	Input()
	High()
	Low()
	Read() rpio.State
}

// GPIO controls the modem lines through the host's memory mapped GPIO.
type GPIO struct {
	reset line
	vint  line
	gpio1 line

	pulse  time.Duration
	settle time.Duration
	closer func() error
}

// Open maps the GPIO registers and configures the pins. The mapping stays
// open until Close.
func Open(pins Pins) (*GPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	return newGPIO(rpio.Pin(pins.Reset), rpio.Pin(pins.VInt), rpio.Pin(pins.GPIO1), rpio.Close), nil
}

func newGPIO(reset, vint, gpio1 line, closer func() error) *GPIO {
	reset.Output()
	reset.High()
	vint.Input()
	gpio1.Input()
	return &GPIO{
		reset:  reset,
		vint:   vint,
		gpio1:  gpio1,
		pulse:  ResetPulse,
		settle: ResetSettle,
		closer: closer,
	}
}

// Reset pulses the reset line low and waits for the modem to settle.
func (g *GPIO) Reset(ctx context.Context) error {
	g.reset.Low()
	if err := sleep(ctx, g.pulse); err != nil {
		g.reset.High()
		return err
	}
	g.reset.High()
	return sleep(ctx, g.settle)
}

// Powered reports whether the modem V_INT line is high.
func (g *GPIO) Powered() bool {
	return g.vint.Read() == rpio.High
}

// PowerSaving reports whether the modem signals deep sleep on GPIO1.
// The line is low while the modem is in PSM.
func (g *GPIO) PowerSaving() bool {
	return g.gpio1.Read() == rpio.Low
}

// Close releases the GPIO mapping.
func (g *GPIO) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
