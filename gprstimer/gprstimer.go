// Package gprstimer encodes and decodes the 3GPP GPRS Timer 3 octet used by
// AT+CPSMS for the periodic TAU timer (T3412) and the active time (T3324).
//
// A coded value is an 8 character ASCII string of '0' and '1': three unit
// bits followed by a five bit big-endian multiplier.
package gprstimer

import (
	"errors"
	"fmt"
	"time"
)

// MaxMultiples is the largest multiplier a five bit field can carry.
const MaxMultiples = 31

// Len is the length of a coded timer string.
const Len = 8

var (
	// ErrExceedsMaxValue is returned when the multiplier does not fit in five bits.
	ErrExceedsMaxValue = errors.New("gprstimer: multiples exceed 31")

	// ErrInvalidUnit is returned for a unit outside the enumerated set, and
	// when decoding unit bits that do not name a unit.
	ErrInvalidUnit = errors.New("gprstimer: invalid unit value")

	// ErrMalformed is returned when a coded value is not 8 binary digits.
	ErrMalformed = errors.New("gprstimer: malformed timer value")
)

// T3412Unit is the unit of the periodic TAU timer.
type T3412Unit int

const (
	T3412Invalid T3412Unit = iota
	T3412Hr320
	T3412Hr10
	T3412Hr1
	T3412Min10
	T3412Min1
	T3412Sec30
	T3412Sec2
	T3412Deact
)

var t3412Bits = map[T3412Unit]string{
	T3412Hr320: "110",
	T3412Hr10:  "010",
	T3412Hr1:   "001",
	T3412Min10: "000",
	T3412Min1:  "101",
	T3412Sec30: "100",
	T3412Sec2:  "011",
	T3412Deact: "111",
}

var t3412Step = map[T3412Unit]time.Duration{
	T3412Hr320: 320 * time.Hour,
	T3412Hr10:  10 * time.Hour,
	T3412Hr1:   time.Hour,
	T3412Min10: 10 * time.Minute,
	T3412Min1:  time.Minute,
	T3412Sec30: 30 * time.Second,
	T3412Sec2:  2 * time.Second,
}

func (u T3412Unit) String() string {
	switch u {
	case T3412Hr320:
		return "HR_320"
	case T3412Hr10:
		return "HR_10"
	case T3412Hr1:
		return "HR_1"
	case T3412Min10:
		return "MIN_10"
	case T3412Min1:
		return "MIN_1"
	case T3412Sec30:
		return "SEC_30"
	case T3412Sec2:
		return "SEC_2"
	case T3412Deact:
		return "DEACT"
	default:
		return "INVALID"
	}
}

// Duration returns the interval the unit and multiplier describe. A
// deactivated timer has no duration.
func (u T3412Unit) Duration(multiples uint8) time.Duration {
	return t3412Step[u] * time.Duration(multiples)
}

// T3324Unit is the unit of the active time.
type T3324Unit int

const (
	T3324Invalid T3324Unit = iota
	T3324Min6
	T3324Min1
	T3324Sec2
	T3324Deact
)

var t3324Bits = map[T3324Unit]string{
	T3324Min6:  "010",
	T3324Min1:  "001",
	T3324Sec2:  "000",
	T3324Deact: "111",
}

var t3324Step = map[T3324Unit]time.Duration{
	T3324Min6: 6 * time.Minute,
	T3324Min1: time.Minute,
	T3324Sec2: 2 * time.Second,
}

func (u T3324Unit) String() string {
	switch u {
	case T3324Min6:
		return "MIN_6"
	case T3324Min1:
		return "MIN_1"
	case T3324Sec2:
		return "SEC_2"
	case T3324Deact:
		return "DEACT"
	default:
		return "INVALID"
	}
}

// Duration returns the interval the unit and multiplier describe.
func (u T3324Unit) Duration(multiples uint8) time.Duration {
	return t3324Step[u] * time.Duration(multiples)
}

// EncodeT3412 returns the coded periodic TAU value.
func EncodeT3412(unit T3412Unit, multiples uint8) (string, error) {
	return encode(t3412Bits, unit, multiples)
}

// DecodeT3412 parses a coded periodic TAU value. When the unit bits are not
// recognised the returned unit is T3412Invalid and err is ErrInvalidUnit;
// multiples is still decoded.
func DecodeT3412(coded string) (T3412Unit, uint8, error) {
	return decode(t3412Bits, T3412Invalid, coded)
}

// EncodeT3324 returns the coded active time value.
func EncodeT3324(unit T3324Unit, multiples uint8) (string, error) {
	return encode(t3324Bits, unit, multiples)
}

// DecodeT3324 parses a coded active time value.
func DecodeT3324(coded string) (T3324Unit, uint8, error) {
	return decode(t3324Bits, T3324Invalid, coded)
}

func encode[U comparable](table map[U]string, unit U, multiples uint8) (string, error) {
	if multiples > MaxMultiples {
		return "", ErrExceedsMaxValue
	}
	bits, ok := table[unit]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrInvalidUnit, unit)
	}
	return bits + fmt.Sprintf("%05b", multiples), nil
}

func decode[U comparable](table map[U]string, invalid U, coded string) (U, uint8, error) {
	if len(coded) != Len {
		return invalid, 0, fmt.Errorf("%w: %q", ErrMalformed, coded)
	}
	var multiples uint8
	place := uint8(16)
	for i := 3; i < Len; i++ {
		switch coded[i] {
		case '1':
			multiples += place
		case '0':
		default:
			return invalid, 0, fmt.Errorf("%w: %q", ErrMalformed, coded)
		}
		place /= 2
	}

	for unit, bits := range table {
		if coded[:3] == bits {
			return unit, multiples, nil
		}
	}
	return invalid, multiples, fmt.Errorf("%w: %q", ErrInvalidUnit, coded[:3])
}
