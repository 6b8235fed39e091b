package nbiot

import (
	"context"
	"errors"
	"strconv"

	"thingpilot.io/nbiot/at"
	"thingpilot.io/nbiot/gprstimer"
	"thingpilot.io/nbiot/modem"
)

// Code is the numeric result of an operation. The values 0 and 60..63 are
// fixed; the driver codes below 60 classify errors raised by the AT engine.
//
// Operations return Code values, possibly wrapped, as errors. OK is never
// returned as an error; use StatusOf to turn any error into a Code.
type Code int

const (
	OK Code = 0

	// Driver-assigned codes
	CodeATError         Code = 1
	CodeCMEError        Code = 2
	CodeTimeout         Code = 3
	CodeParseError      Code = 4
	CodeTransport       Code = 5
	CodeInvalidArgument Code = 6
	CodeClosed          Code = 7

	ErrDriverUnknown    Code = 60
	ErrExceedsMaxValue  Code = 61
	ErrInvalidUnitValue Code = 62
	ErrFailToConnect    Code = 63
)

var codeNames = map[Code]string{
	OK:                  "ok",
	CodeATError:         "AT error",
	CodeCMEError:        "CME error",
	CodeTimeout:         "AT timeout",
	CodeParseError:      "parse error",
	CodeTransport:       "transport error",
	CodeInvalidArgument: "invalid argument",
	CodeClosed:          "modem closed",
	ErrDriverUnknown:    "driver unknown",
	ErrExceedsMaxValue:  "exceeds max value",
	ErrInvalidUnitValue: "invalid unit value",
	ErrFailToConnect:    "fail to connect",
}

func (c Code) Error() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "nbiot code " + strconv.Itoa(int(c))
}

// StatusOf maps err to its numeric result code. A nil error is OK.
func StatusOf(err error) Code {
	if err == nil {
		return OK
	}

	var code Code
	if errors.As(err, &code) {
		return code
	}
	var cme at.CMEError
	if errors.As(err, &cme) {
		return CodeCMEError
	}

	switch {
	case errors.Is(err, gprstimer.ErrExceedsMaxValue), errors.Is(err, modem.ErrOutOfRange):
		return ErrExceedsMaxValue
	case errors.Is(err, gprstimer.ErrInvalidUnit):
		return ErrInvalidUnitValue
	case errors.Is(err, at.ErrError):
		return CodeATError
	case errors.Is(err, modem.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, modem.ErrUnexpectedResponse), errors.Is(err, gprstimer.ErrMalformed):
		return CodeParseError
	case errors.Is(err, modem.ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, modem.ErrAlreadyClosed), errors.Is(err, modem.ErrNotInitialized):
		return CodeClosed
	default:
		return CodeTransport
	}
}

// CMECode returns the +CME ERROR code carried by err.
func CMECode(err error) (int, bool) {
	var cme at.CMEError
	if errors.As(err, &cme) {
		return int(cme), true
	}
	return 0, false
}
