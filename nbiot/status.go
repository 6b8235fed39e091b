package nbiot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"thingpilot.io/nbiot/modem"
)

// ConnectionStatus is the u-blox connection status derived from the
// registration, RRC connection and power save indicators.
type ConnectionStatus int

const (
	StateUndefined ConnectionStatus = iota
	ActiveNoNetworkActivity
	ActiveScanningForBaseStation
	ActiveStartingRegistration
	ActiveRegisteredRRCConnected
	ActiveRegisteredRRCReleased
	PSMRegistered
	RegistrationFailed
)

func (s ConnectionStatus) String() string {
	switch s {
	case ActiveNoNetworkActivity:
		return "ACTIVE_NO_NETWORK_ACTIVITY"
	case ActiveScanningForBaseStation:
		return "ACTIVE_SCANNING_FOR_BASE_STATION"
	case ActiveStartingRegistration:
		return "ACTIVE_STARTING_REGISTRATION"
	case ActiveRegisteredRRCConnected:
		return "ACTIVE_REGISTERED_RRC_CONNECTED"
	case ActiveRegisteredRRCReleased:
		return "ACTIVE_REGISTERED_RRC_RELEASED"
	case PSMRegistered:
		return "PSM_REGISTERED"
	case RegistrationFailed:
		return "REGISTRATION_FAILED"
	default:
		return "STATE_UNDEFINED"
	}
}

// Registered reports whether s is one of the states Start waits for.
func (s ConnectionStatus) Registered() bool {
	switch s {
	case ActiveRegisteredRRCConnected, ActiveRegisteredRRCReleased, PSMRegistered:
		return true
	}
	return false
}

// +CEREG <stat> values
const (
	regNotSearching = 0
	regHome         = 1
	regSearching    = 2
	regDenied       = 3
	regRoaming      = 5
)

// StatusOfIndicators maps a (registered, connected, psm) triple to its
// connection status. Triples outside the table are StateUndefined.
func StatusOfIndicators(registered, connected, psm int) ConnectionStatus {
	if registered == regDenied {
		return RegistrationFailed
	}
	home := registered == regHome || registered == regRoaming

	switch {
	case psm == 0 && connected == 0 && registered == regNotSearching:
		return ActiveNoNetworkActivity
	case psm == 0 && connected == 0 && registered == regSearching:
		return ActiveScanningForBaseStation
	case psm == 0 && connected == 1 && registered == regSearching:
		return ActiveStartingRegistration
	case psm == 0 && connected == 1 && home:
		return ActiveRegisteredRRCConnected
	case psm == 0 && connected == 0 && home:
		return ActiveRegisteredRRCReleased
	case psm == 1 && connected == 0 && home:
		return PSMRegistered
	}
	return StateUndefined
}

// NetworkStatus is the result of ModuleNetworkStatus.
type NetworkStatus struct {
	Status     ConnectionStatus
	Connected  int
	Registered int
	PSM        int
}

// Connection reads the RRC connection mode and the registration status.
func (i *Interface) Connection(ctx context.Context) (connected, registered int, err error) {
	if err := i.check(); err != nil {
		return 0, 0, err
	}
	if _, connected, err = i.modem.CSCON(ctx); err != nil {
		return 0, 0, err
	}
	if _, registered, err = i.modem.CEREG(ctx); err != nil {
		return 0, 0, err
	}
	return connected, registered, nil
}

// ModuleNetworkStatus reads the three indicators and maps them to a
// connection status.
func (i *Interface) ModuleNetworkStatus(ctx context.Context) (NetworkStatus, error) {
	connected, registered, err := i.Connection(ctx)
	if err != nil {
		return NetworkStatus{}, err
	}
	psm, err := i.modem.NPSMR(ctx)
	if err != nil {
		return NetworkStatus{}, err
	}
	return NetworkStatus{
		Status:     StatusOfIndicators(registered, connected, psm),
		Connected:  connected,
		Registered: registered,
		PSM:        psm,
	}, nil
}

// CachedNetworkStatus maps the indicators last seen in query responses or
// URCs without talking to the modem. Indicators not seen since the last
// reboot are modem.Unknown and map to StateUndefined.
func (i *Interface) CachedNetworkStatus() (NetworkStatus, error) {
	if err := i.check(); err != nil {
		return NetworkStatus{}, err
	}
	s := i.modem.Session()
	return NetworkStatus{
		Status:     StatusOfIndicators(s.Registered, s.Connected, s.PSM),
		Connected:  s.Connected,
		Registered: s.Registered,
		PSM:        s.PSM,
	}, nil
}

// Ready probes the modem with AT every ready interval until it answers OK
// or timeout expires.
func (i *Interface) Ready(ctx context.Context, timeout time.Duration) error {
	if err := i.check(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(i.readyInterval)
	defer ticker.Stop()

	for {
		err := i.modem.AT(ctx)
		if err == nil {
			return nil
		}
		i.logger.Debug("modem not ready", "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("modem not ready: %w", err)
		case <-ticker.C:
		}
	}
}

// startProfile is applied by Start before rebooting.
var startProfile = []modem.UESetting{
	modem.Autoconnect,
	modem.CellReselection,
	modem.NASSimPSM,
}

// Start enables autoconnect, cell reselection, SIM and module power
// saving, reboots the modem and waits until it registers. If no registered
// status is seen within timeout the radio is switched off and
// ErrFailToConnect is returned.
func (i *Interface) Start(ctx context.Context, timeout time.Duration) error {
	if err := i.check(); err != nil {
		return err
	}
	for _, setting := range startProfile {
		if err := i.modem.ConfigureUE(ctx, setting, true); err != nil {
			return err
		}
	}
	if err := i.modem.SetPowerSaveMode(ctx, true); err != nil {
		return err
	}

	started := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := i.modem.Reboot(pollCtx); err != nil && pollCtx.Err() == nil {
		return err
	}

	ticker := time.NewTicker(i.startInterval)
	defer ticker.Stop()

	for pollCtx.Err() == nil {
		status, err := i.ModuleNetworkStatus(pollCtx)
		switch {
		case err != nil:
			i.logger.Debug("network status", "error", err)
		case status.Status.Registered():
			i.logger.Info("modem registered", "status", status.Status, "elapsed", time.Since(started))
			return nil
		default:
			i.logger.Debug("waiting for registration", "status", status.Status)
		}

		select {
		case <-pollCtx.Done():
		case <-ticker.C:
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	i.logger.Warn("modem failed to register, switching radio off", "timeout", timeout)
	if err := i.modem.SetRadio(ctx, false); err != nil {
		return errors.Join(ErrFailToConnect, fmt.Errorf("deactivate radio: %w", err))
	}
	return ErrFailToConnect
}
