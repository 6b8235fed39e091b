package nbiot

import (
	"context"
	"errors"
	"fmt"

	"thingpilot.io/nbiot/gprstimer"
)

// SetTAUTimer requests a periodic TAU (T3412) of multiples units.
// multiples above 31 fail with ErrExceedsMaxValue before any I/O.
func (i *Interface) SetTAUTimer(ctx context.Context, unit gprstimer.T3412Unit, multiples uint8) error {
	coded, err := gprstimer.EncodeT3412(unit, multiples)
	if err != nil {
		return codecError(err)
	}
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.SetT3412(ctx, coded)
}

// TAUTimerRaw returns the coded periodic TAU value.
func (i *Interface) TAUTimerRaw(ctx context.Context) (string, error) {
	if err := i.check(); err != nil {
		return "", err
	}
	return i.modem.T3412(ctx)
}

// TAUTimer returns the decoded periodic TAU value.
func (i *Interface) TAUTimer(ctx context.Context) (gprstimer.T3412Unit, uint8, error) {
	coded, err := i.TAUTimerRaw(ctx)
	if err != nil {
		return gprstimer.T3412Invalid, 0, err
	}
	unit, multiples, err := gprstimer.DecodeT3412(coded)
	return unit, multiples, codecError(err)
}

// SetActiveTime requests an active time (T3324) of multiples units.
func (i *Interface) SetActiveTime(ctx context.Context, unit gprstimer.T3324Unit, multiples uint8) error {
	coded, err := gprstimer.EncodeT3324(unit, multiples)
	if err != nil {
		return codecError(err)
	}
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.SetT3324(ctx, coded)
}

// ActiveTimeRaw returns the coded active time value.
func (i *Interface) ActiveTimeRaw(ctx context.Context) (string, error) {
	if err := i.check(); err != nil {
		return "", err
	}
	return i.modem.T3324(ctx)
}

// ActiveTime returns the decoded active time. Unit bits that name no T3324
// unit yield T3324Invalid, the decoded multiples and ErrInvalidUnitValue.
func (i *Interface) ActiveTime(ctx context.Context) (gprstimer.T3324Unit, uint8, error) {
	coded, err := i.ActiveTimeRaw(ctx)
	if err != nil {
		return gprstimer.T3324Invalid, 0, err
	}
	unit, multiples, err := gprstimer.DecodeT3324(coded)
	return unit, multiples, codecError(err)
}

// codecError attaches the result code to a gprstimer error.
func codecError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gprstimer.ErrExceedsMaxValue):
		return fmt.Errorf("%w: %w", ErrExceedsMaxValue, err)
	case errors.Is(err, gprstimer.ErrInvalidUnit):
		return fmt.Errorf("%w: %w", ErrInvalidUnitValue, err)
	default:
		return err
	}
}
