package at

import (
	"errors"
	"strconv"
	"strings"
)

// ErrError is returned when the modem terminates a command with a bare ERROR.
var ErrError = errors.New("ERROR")

// CMEError indicates a +CME ERROR was returned by the modem. The modem is
// put in numeric error mode (AT+CMEE=1) during initialisation, so the
// value is the numeric code. Verbose text codes map to -1.
type CMEError int

func (e CMEError) Error() string {
	return "CME error: " + strconv.Itoa(int(e))
}

// FinalError converts a final result line into an error. It returns nil
// for OK.
func FinalError(line string) error {
	switch {
	case line == OK:
		return nil
	case strings.HasPrefix(line, CmeError):
		code, err := strconv.Atoi(strings.TrimSpace(line[len(CmeError):]))
		if err != nil {
			return CMEError(-1)
		}
		return CMEError(code)
	default:
		return ErrError
	}
}
