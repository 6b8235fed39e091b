package modem

import (
	"strconv"
	"sync"
	"time"

	"thingpilot.io/nbiot/at"
)

// Unknown marks an indicator that has not been observed since the last
// reboot.
const Unknown = -1

// Session is a snapshot of the state cached for the live link to the
// modem. Indicators are refreshed both by query responses and by URCs.
type Session struct {
	// Registered is the +CEREG <stat> value
	Registered int
	// Connected is the +CSCON <mode> value, 1 while RRC connected
	Connected int
	// PSM is the +NPSMR <mode> value, 1 while in power save mode
	PSM int
	// Radio is the +CFUN value
	Radio int

	// Power and Quality are the last +CSQ values
	Power   int
	Quality int

	EARFCN uint32
	Band   Band

	// T3412 and T3324 are the last coded timer values set or read
	T3412 string
	T3324 string

	// Rebooting is set from REBOOTING until READY, which resets the Session
	Rebooting bool
	UpdatedAt time.Time
}

type session struct {
	mu sync.Mutex
	s  Session
}

func (s *session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s = Session{
		Registered: Unknown,
		Connected:  Unknown,
		PSM:        Unknown,
		Radio:      Unknown,
		Power:      Unknown,
		Quality:    Unknown,
		UpdatedAt:  time.Now(),
	}
}

func (s *session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

func (s *session) set(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.s)
	s.s.UpdatedAt = time.Now()
}

// update applies a URC line. URC forms carry no <n> field:
//
//	+CSCON: <mode>
//	+CEREG: <stat>[,<tac>,<ci>,<AcT>]
//	+NPSMR: <mode>
func (s *session) update(line string) {
	switch {
	case line == at.UrcRebooting:
		s.set(func(st *Session) { st.Rebooting = true })
	case line == at.UrcReady:
		// nothing observed before the reboot holds any longer
		s.reset()
	default:
		for prefix, apply := range urcFields {
			if f, ok := at.Fields(line, prefix); ok && len(f) > 0 {
				if v, err := strconv.Atoi(f[0]); err == nil {
					s.set(func(st *Session) { apply(st, v) })
				}
				return
			}
		}
	}
}

var urcFields = map[string]func(*Session, int){
	at.UrcConnection:   func(s *Session, v int) { s.Connected = v },
	at.UrcRegistration: func(s *Session, v int) { s.Registered = v },
	at.UrcPowerSave:    func(s *Session, v int) { s.PSM = v },
}

// Session returns a snapshot of the cached link state.
func (m *Modem) Session() Session {
	return m.session.snapshot()
}
