package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"thingpilot.io/nbiot/at"
)

// UESetting is a boolean AT+NCONFIG key. Settings are stored in the modem
// NVM and survive a reboot.
type UESetting string

const (
	// Autoconnect attaches on power-on with CFUN=1, reading the SIM PLMN.
	Autoconnect UESetting = "AUTOCONNECT"
	// Scrambling enables CR_0354_0338 scrambling (operator specific).
	Scrambling UESetting = "CR_0354_0338_SCRAMBLING"
	// SIAvoid schedules around conflicted NSIB (operator specific).
	SIAvoid         UESetting = "CR_0859_SI_AVOID"
	CombineAttach   UESetting = "COMBINE_ATTACH"
	CellReselection UESetting = "CELL_RESELECTION"
	EnableBIP       UESetting = "ENABLE_BIP"
	// NASSimPSM powers the SIM only while it is accessed.
	NASSimPSM UESetting = "NAS_SIM_POWER_SAVING_ENABLE"
)

// UESettings lists every supported setting.
var UESettings = []UESetting{
	Autoconnect,
	Scrambling,
	SIAvoid,
	CombineAttach,
	CellReselection,
	EnableBIP,
	NASSimPSM,
}

func (s UESetting) valid() bool {
	for _, v := range UESettings {
		if s == v {
			return true
		}
	}
	return false
}

// AT sends a bare AT and expects OK.
func (m *Modem) AT(ctx context.Context) error {
	_, err := m.exec(ctx, at.CmdAt)
	return err
}

// Reboot issues AT+NRB and waits for the modem to report READY. Every
// setting not held in NVM is lost: the cached Session is reset on READY and
// numeric errors and indicator URCs are enabled again.
func (m *Modem) Reboot(ctx context.Context) error {
	_, err := m.do(ctx, request{cmd: at.CmdReboot, await: at.UrcReady, timeout: m.config.rebootTimeout})
	if err != nil {
		return fmt.Errorf("reboot: %w", err)
	}

	for _, cmd := range reporting {
		if _, err := m.exec(ctx, cmd); err != nil {
			return fmt.Errorf("enable reporting after reboot (%s): %w", cmd, err)
		}
	}
	return nil
}

// HardReset pulses the modem reset line. The modem is not usable until it
// answers AT again.
func (m *Modem) HardReset(ctx context.Context) error {
	if m.config.resetLine == nil {
		return ErrNoResetLine
	}
	if err := m.config.resetLine.Reset(ctx); err != nil {
		return fmt.Errorf("hardware reset: %w", err)
	}
	m.session.reset()
	return nil
}

// SetRadio switches the radio on (AT+CFUN=1) or off (AT+CFUN=0).
func (m *Modem) SetRadio(ctx context.Context, on bool) error {
	cmd := at.CmdRadioOff
	if on {
		cmd = at.CmdRadioOn
	}
	if _, err := m.do(ctx, request{cmd: cmd, timeout: m.config.networkTimeout}); err != nil {
		return err
	}
	m.session.set(func(s *Session) { s.Radio = boolInt(on) })
	return nil
}

// Radio returns the AT+CFUN value, 1 when the radio is on.
func (m *Modem) Radio(ctx context.Context) (int, error) {
	v, err := m.queryInts(ctx, at.CmdRadioQuery, 1)
	if err != nil {
		return 0, err
	}
	m.session.set(func(s *Session) { s.Radio = v[0] })
	return v[0], nil
}

// SetAttach attaches to (AT+CGATT=1) or detaches from (AT+CGATT=0) the
// packet domain.
func (m *Modem) SetAttach(ctx context.Context, attach bool) error {
	cmd := at.CmdDetach
	if attach {
		cmd = at.CmdAttach
	}
	_, err := m.do(ctx, request{cmd: cmd, timeout: m.config.networkTimeout})
	return err
}

// AutoRegister selects the network automatically (AT+COPS=0).
func (m *Modem) AutoRegister(ctx context.Context) error {
	_, err := m.do(ctx, request{cmd: at.CmdAutoRegister, timeout: m.config.networkTimeout})
	return err
}

// Deregister deregisters from the network (AT+COPS=2).
func (m *Modem) Deregister(ctx context.Context) error {
	_, err := m.do(ctx, request{cmd: at.CmdDeregister, timeout: m.config.networkTimeout})
	return err
}

// SetPowerSaveMode enables or disables PSM for the whole module.
func (m *Modem) SetPowerSaveMode(ctx context.Context, enable bool) error {
	cmd := at.CmdPSMOff
	if enable {
		cmd = at.CmdPSMOn
	}
	_, err := m.exec(ctx, cmd)
	return err
}

// PowerSaveMode returns the AT+CPSMS mode, 1 when PSM is enabled.
func (m *Modem) PowerSaveMode(ctx context.Context) (int, error) {
	f, err := m.cpsms(ctx)
	if err != nil {
		return 0, err
	}
	return atoi(f[0])
}

// CSCON returns the RRC connection indicator: the URC setting and the
// connection mode (1 connected, 0 idle).
func (m *Modem) CSCON(ctx context.Context) (urc, connected int, err error) {
	v, err := m.queryInts(ctx, at.CmdConnection, 2)
	if err != nil {
		return 0, 0, err
	}
	m.session.set(func(s *Session) { s.Connected = v[1] })
	return v[0], v[1], nil
}

// CEREG returns the EPS registration indicator: the URC setting and the
// registration status (0 not searching, 1 home, 2 searching, 3 denied,
// 4 unknown, 5 roaming).
func (m *Modem) CEREG(ctx context.Context) (urc, status int, err error) {
	v, err := m.queryInts(ctx, at.CmdRegistration, 2)
	if err != nil {
		return 0, 0, err
	}
	m.session.set(func(s *Session) { s.Registered = v[1] })
	return v[0], v[1], nil
}

// NPSMR returns the power save mode status, 1 while in PSM. The modem only
// reports the mode while the +NPSMR URC is enabled, which New and Reboot
// take care of; a bare "+NPSMR: 0" is ErrUnexpectedResponse.
func (m *Modem) NPSMR(ctx context.Context) (int, error) {
	v, err := m.queryInts(ctx, at.CmdPowerSaveStat, 2)
	if err != nil {
		return 0, err
	}
	m.session.set(func(s *Session) { s.PSM = v[1] })
	return v[1], nil
}

// ConfigureUE sets a boolean NCONFIG key.
func (m *Modem) ConfigureUE(ctx context.Context, setting UESetting, value bool) error {
	if !setting.valid() {
		return fmt.Errorf("%w: UE setting %q", ErrInvalidArgument, setting)
	}
	v := at.NConfigFalse
	if value {
		v = at.NConfigTrue
	}
	_, err := m.exec(ctx, fmt.Sprintf(at.CmdConfigUE, setting, v))
	return err
}

// UEConfig reads back a boolean NCONFIG key.
func (m *Modem) UEConfig(ctx context.Context, setting UESetting) (bool, error) {
	if !setting.valid() {
		return false, fmt.Errorf("%w: UE setting %q", ErrInvalidArgument, setting)
	}
	lines, err := m.exec(ctx, at.CmdConfigUEQuery)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		f, ok := at.Fields(line, "+NCONFIG")
		if !ok || len(f) != 2 || f[0] != string(setting) {
			continue
		}
		return strings.EqualFold(f[1], at.NConfigTrue), nil
	}
	return false, fmt.Errorf("%w: %s missing from %q", ErrUnexpectedResponse, setting, lines)
}

// SetT3412 requests a periodic TAU value, coded as 8 binary digits.
func (m *Modem) SetT3412(ctx context.Context, coded string) error {
	if err := validTimer(coded); err != nil {
		return err
	}
	if _, err := m.exec(ctx, fmt.Sprintf(at.CmdSetT3412, coded)); err != nil {
		return err
	}
	m.session.set(func(s *Session) { s.T3412 = coded })
	return nil
}

// T3412 returns the requested periodic TAU value.
func (m *Modem) T3412(ctx context.Context) (string, error) {
	f, err := m.cpsms(ctx)
	if err != nil {
		return "", err
	}
	if len(f) < 4 || validTimer(f[3]) != nil {
		return "", fmt.Errorf("%w: T3412 in %q", ErrUnexpectedResponse, f)
	}
	m.session.set(func(s *Session) { s.T3412 = f[3] })
	return f[3], nil
}

// SetT3324 requests an active time value, coded as 8 binary digits.
func (m *Modem) SetT3324(ctx context.Context, coded string) error {
	if err := validTimer(coded); err != nil {
		return err
	}
	if _, err := m.exec(ctx, fmt.Sprintf(at.CmdSetT3324, coded)); err != nil {
		return err
	}
	m.session.set(func(s *Session) { s.T3324 = coded })
	return nil
}

// T3324 returns the requested active time value.
func (m *Modem) T3324(ctx context.Context) (string, error) {
	f, err := m.cpsms(ctx)
	if err != nil {
		return "", err
	}
	if len(f) < 5 || validTimer(f[4]) != nil {
		return "", fmt.Errorf("%w: T3324 in %q", ErrUnexpectedResponse, f)
	}
	m.session.set(func(s *Session) { s.T3324 = f[4] })
	return f[4], nil
}

// CSQ returns the received signal strength indicator and the channel bit
// error rate. 99 means not known.
func (m *Modem) CSQ(ctx context.Context) (power, quality int, err error) {
	v, err := m.queryInts(ctx, at.CmdSignal, 2)
	if err != nil {
		return 0, 0, err
	}
	m.session.set(func(s *Session) {
		s.Power = v[0]
		s.Quality = v[1]
	})
	return v[0], v[1], nil
}

// NUEStats returns the radio statistics of the serving cell.
func (m *Modem) NUEStats(ctx context.Context) (NUEStats, error) {
	lines, err := m.exec(ctx, at.CmdUEStats)
	if err != nil {
		return NUEStats{}, err
	}
	stats, err := ParseNUEStats(lines)
	if err != nil {
		return NUEStats{}, err
	}
	m.session.set(func(s *Session) {
		s.EARFCN = stats.EARFCN
		s.Band = BandFromEARFCN(stats.EARFCN)
	})
	return stats, nil
}

func (m *Modem) cpsms(ctx context.Context) ([]string, error) {
	return m.query(ctx, at.CmdPSMQuery, 1)
}

// query executes cmd and returns the fields of its first information line,
// requiring at least minFields fields.
func (m *Modem) query(ctx context.Context, cmd string, minFields int) ([]string, error) {
	lines, err := m.exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	id := at.CommandID(cmd)
	for _, line := range lines {
		if f, ok := at.Fields(line, id); ok {
			if len(f) < minFields {
				continue
			}
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s returned %q", ErrUnexpectedResponse, cmd, lines)
}

// queryInts is query for the first n fields as integers.
func (m *Modem) queryInts(ctx context.Context, cmd string, n int) ([]int, error) {
	f, err := m.query(ctx, cmd, n)
	if err != nil {
		return nil, err
	}
	v := make([]int, n)
	for i := range v {
		if v[i], err = atoi(f[i]); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func validTimer(coded string) error {
	if len(coded) != 8 || strings.Trim(coded, "01") != "" {
		return fmt.Errorf("%w: timer value %q", ErrInvalidArgument, coded)
	}
	return nil
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
