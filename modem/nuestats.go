package modem

import (
	"fmt"
	"strconv"
	"strings"

	"thingpilot.io/nbiot/at"
)

// Band is the LTE band the modem is camped on.
type Band int

const (
	BandUnknown Band = 0
	Band8       Band = 8
	Band20      Band = 20
)

func (b Band) String() string {
	switch b {
	case Band8:
		return "B8"
	case Band20:
		return "B20"
	default:
		return "unknown"
	}
}

// BandFromEARFCN maps a downlink EARFCN to its band.
func BandFromEARFCN(earfcn uint32) Band {
	switch {
	case earfcn >= 3450 && earfcn <= 3799:
		return Band8
	case earfcn >= 6150 && earfcn <= 6449:
		return Band20
	default:
		return BandUnknown
	}
}

// NUEStats is the radio section of AT+NUESTATS.
type NUEStats struct {
	// RSRP is the "Signal power" in tenths of a dBm
	RSRP int
	// TotalPower in tenths of a dBm
	TotalPower int
	// TxPower in tenths of a dBm
	TxPower int
	// TxTime and RxTime are in milliseconds since the last reboot
	TxTime uint32
	RxTime uint32
	CellID uint32
	ECL    int
	// SNR in tenths of a dB
	SNR    int
	EARFCN uint32
	PCI    int
	// RSRQ in tenths of a dB
	RSRQ                 int
	OperatorMode         int
	LastModulationScheme int
}

// ParseNUEStats parses the information lines of AT+NUESTATS. Both the
// legacy "Key:value" layout and the "NUESTATS: "RADIO","Key",value" layout
// are accepted; unknown keys are ignored.
func ParseNUEStats(lines []string) (NUEStats, error) {
	var (
		s      NUEStats
		parsed int
	)
	for _, line := range lines {
		key, value, ok := nuestatsPair(line)
		if !ok {
			continue
		}
		set, known := nuestatsKeys[strings.ToLower(key)]
		if !known {
			continue
		}
		if err := set(&s, value); err != nil {
			return NUEStats{}, fmt.Errorf("%w: %q: %w", ErrUnexpectedResponse, line, err)
		}
		parsed++
	}
	if parsed == 0 {
		return NUEStats{}, fmt.Errorf("%w: no statistics in %q", ErrUnexpectedResponse, lines)
	}
	return s, nil
}

func nuestatsPair(line string) (key, value string, ok bool) {
	for _, p := range []string{"+NUESTATS", "NUESTATS"} {
		if f, found := at.Fields(line, p); found {
			if len(f) != 3 {
				return "", "", false
			}
			return f[1], f[2], true
		}
	}
	key, value, ok = strings.Cut(line, ":")
	return strings.TrimSpace(key), strings.TrimSpace(value), ok
}

func intField(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	*dst = n
	return err
}

var nuestatsKeys = map[string]func(*NUEStats, string) error{
	"signal power":           func(s *NUEStats, v string) error { return intField(&s.RSRP, v) },
	"total power":            func(s *NUEStats, v string) error { return intField(&s.TotalPower, v) },
	"tx power":               func(s *NUEStats, v string) error { return intField(&s.TxPower, v) },
	"tx time":                func(s *NUEStats, v string) error { return uintField(&s.TxTime, v) },
	"rx time":                func(s *NUEStats, v string) error { return uintField(&s.RxTime, v) },
	"cell id":                func(s *NUEStats, v string) error { return uintField(&s.CellID, v) },
	"ecl":                    func(s *NUEStats, v string) error { return intField(&s.ECL, v) },
	"snr":                    func(s *NUEStats, v string) error { return intField(&s.SNR, v) },
	"earfcn":                 func(s *NUEStats, v string) error { return uintField(&s.EARFCN, v) },
	"pci":                    func(s *NUEStats, v string) error { return intField(&s.PCI, v) },
	"rsrq":                   func(s *NUEStats, v string) error { return intField(&s.RSRQ, v) },
	"operator mode":          func(s *NUEStats, v string) error { return intField(&s.OperatorMode, v) },
	"last modulation scheme": func(s *NUEStats, v string) error { return intField(&s.LastModulationScheme, v) },
}

func uintField(dst *uint32, v string) error {
	n, err := strconv.ParseUint(v, 10, 32)
	*dst = uint32(n)
	return err
}
