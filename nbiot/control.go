package nbiot

import (
	"context"

	"thingpilot.io/nbiot/modem"
)

// RebootModem reboots the modem and waits for READY. Settings not held in
// NVM are lost.
func (i *Interface) RebootModem(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.Reboot(ctx)
}

// HardReset pulses the board reset line.
func (i *Interface) HardReset(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.HardReset(ctx)
}

func (i *Interface) ActivateRadio(ctx context.Context) error {
	return i.setRadio(ctx, true)
}

func (i *Interface) DeactivateRadio(ctx context.Context) error {
	return i.setRadio(ctx, false)
}

func (i *Interface) setRadio(ctx context.Context, on bool) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.SetRadio(ctx, on)
}

// RadioStatus returns 1 when the radio is on and 0 when it is off.
func (i *Interface) RadioStatus(ctx context.Context) (int, error) {
	if err := i.check(); err != nil {
		return 0, err
	}
	return i.modem.Radio(ctx)
}

func (i *Interface) GPRSAttach(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.SetAttach(ctx, true)
}

func (i *Interface) GPRSDetach(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.SetAttach(ctx, false)
}

func (i *Interface) AutoRegisterToNetwork(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.AutoRegister(ctx)
}

func (i *Interface) DeregisterFromNetwork(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.Deregister(ctx)
}

func (i *Interface) EnablePowerSaveMode(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.SetPowerSaveMode(ctx, true)
}

func (i *Interface) DisablePowerSaveMode(ctx context.Context) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.SetPowerSaveMode(ctx, false)
}

// QueryPowerSaveMode returns 1 when PSM is enabled.
func (i *Interface) QueryPowerSaveMode(ctx context.Context) (int, error) {
	if err := i.check(); err != nil {
		return 0, err
	}
	return i.modem.PowerSaveMode(ctx)
}

// PowerSaveModeStatus returns 1 while the modem is in PSM.
func (i *Interface) PowerSaveModeStatus(ctx context.Context) (int, error) {
	if err := i.check(); err != nil {
		return 0, err
	}
	return i.modem.NPSMR(ctx)
}

func (i *Interface) EnableSIMPowerSaveMode(ctx context.Context) error {
	return i.configureUE(ctx, modem.NASSimPSM, true)
}

func (i *Interface) DisableSIMPowerSaveMode(ctx context.Context) error {
	return i.configureUE(ctx, modem.NASSimPSM, false)
}

func (i *Interface) EnableAutoconnect(ctx context.Context) error {
	return i.configureUE(ctx, modem.Autoconnect, true)
}

func (i *Interface) DisableAutoconnect(ctx context.Context) error {
	return i.configureUE(ctx, modem.Autoconnect, false)
}

func (i *Interface) EnableScrambling(ctx context.Context) error {
	return i.configureUE(ctx, modem.Scrambling, true)
}

func (i *Interface) DisableScrambling(ctx context.Context) error {
	return i.configureUE(ctx, modem.Scrambling, false)
}

func (i *Interface) EnableSIAvoid(ctx context.Context) error {
	return i.configureUE(ctx, modem.SIAvoid, true)
}

func (i *Interface) DisableSIAvoid(ctx context.Context) error {
	return i.configureUE(ctx, modem.SIAvoid, false)
}

func (i *Interface) EnableCombineAttach(ctx context.Context) error {
	return i.configureUE(ctx, modem.CombineAttach, true)
}

func (i *Interface) DisableCombineAttach(ctx context.Context) error {
	return i.configureUE(ctx, modem.CombineAttach, false)
}

func (i *Interface) EnableCellReselection(ctx context.Context) error {
	return i.configureUE(ctx, modem.CellReselection, true)
}

func (i *Interface) DisableCellReselection(ctx context.Context) error {
	return i.configureUE(ctx, modem.CellReselection, false)
}

func (i *Interface) EnableBIP(ctx context.Context) error {
	return i.configureUE(ctx, modem.EnableBIP, true)
}

func (i *Interface) DisableBIP(ctx context.Context) error {
	return i.configureUE(ctx, modem.EnableBIP, false)
}

func (i *Interface) configureUE(ctx context.Context, setting modem.UESetting, value bool) error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.ConfigureUE(ctx, setting, value)
}

// UEConfig reads back a UE setting: 1 when enabled, 0 when disabled.
func (i *Interface) UEConfig(ctx context.Context, setting modem.UESetting) (int, error) {
	if err := i.check(); err != nil {
		return 0, err
	}
	on, err := i.modem.UEConfig(ctx, setting)
	if err != nil {
		return 0, err
	}
	if on {
		return 1, nil
	}
	return 0, nil
}

// CSQ returns the signal power and quality. 99 means not known.
func (i *Interface) CSQ(ctx context.Context) (power, quality int, err error) {
	if err := i.check(); err != nil {
		return 0, 0, err
	}
	return i.modem.CSQ(ctx)
}

// NUEStats returns the radio statistics of the serving cell.
func (i *Interface) NUEStats(ctx context.Context) (modem.NUEStats, error) {
	if err := i.check(); err != nil {
		return modem.NUEStats{}, err
	}
	return i.modem.NUEStats(ctx)
}

// Band returns the band of the serving cell, from its EARFCN.
func (i *Interface) Band(ctx context.Context) (modem.Band, error) {
	stats, err := i.NUEStats(ctx)
	if err != nil {
		return modem.BandUnknown, err
	}
	return modem.BandFromEARFCN(stats.EARFCN), nil
}
