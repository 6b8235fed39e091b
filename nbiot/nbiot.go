// Package nbiot is the application facing interface to an NB-IoT modem. It
// chains driver operations into the procedures an application needs:
// bounded time network attach, power save timers and CoAP requests against
// profile 0.
//
// Every operation is fail-fast: a chained procedure returns the first error
// and leaves any partial state on the modem for the caller to re-drive.
package nbiot

import (
	"context"
	"log/slog"
	"time"

	"thingpilot.io/nbiot/modem"
)

// Driver identifies the modem driver behind an Interface.
type Driver int

const (
	DriverUndefined Driver = iota
	DriverSaraN2
)

func (d Driver) String() string {
	switch d {
	case DriverSaraN2:
		return "SARAN2"
	default:
		return "UNDEFINED"
	}
}

// Modem is the set of driver operations the interface is built on. It is
// implemented by *modem.Modem.
type Modem interface {
	AT(ctx context.Context) error
	Reboot(ctx context.Context) error
	HardReset(ctx context.Context) error
	Close() error
	Session() modem.Session

	SetRadio(ctx context.Context, on bool) error
	Radio(ctx context.Context) (int, error)
	SetAttach(ctx context.Context, attach bool) error
	AutoRegister(ctx context.Context) error
	Deregister(ctx context.Context) error

	SetPowerSaveMode(ctx context.Context, enable bool) error
	PowerSaveMode(ctx context.Context) (int, error)
	NPSMR(ctx context.Context) (int, error)
	CSCON(ctx context.Context) (urc, connected int, err error)
	CEREG(ctx context.Context) (urc, status int, err error)
	ConfigureUE(ctx context.Context, setting modem.UESetting, value bool) error
	UEConfig(ctx context.Context, setting modem.UESetting) (bool, error)

	SetT3412(ctx context.Context, coded string) error
	T3412(ctx context.Context) (string, error)
	SetT3324(ctx context.Context, coded string) error
	T3324(ctx context.Context) (string, error)

	CSQ(ctx context.Context) (power, quality int, err error)
	NUEStats(ctx context.Context) (modem.NUEStats, error)

	SelectProfile(ctx context.Context, profile int) error
	SetCoAPIPPort(ctx context.Context, ipv4 string, port uint16) error
	SetCoAPURI(ctx context.Context, uri string, length int) error
	AddURIPathHeader(ctx context.Context) error
	SetProfileValidity(ctx context.Context, valid bool) error
	SaveProfile(ctx context.Context, profile int) error
	LoadProfile(ctx context.Context, profile int) error
	SelectCoAPInterface(ctx context.Context) error
	CoAPGet(ctx context.Context) (modem.CoAPResponse, error)
	CoAPDelete(ctx context.Context) (modem.CoAPResponse, error)
	CoAPPut(ctx context.Context, payload []byte, format modem.ContentFormat) (modem.CoAPResponse, error)
	CoAPPostBlock(ctx context.Context, block []byte, format modem.ContentFormat, num int, more bool) (modem.CoAPResponse, error)
}

var _ Modem = (*modem.Modem)(nil)

const (
	DefaultReadyInterval = 500 * time.Millisecond
	DefaultStartInterval = 2500 * time.Millisecond
	DefaultReadyTimeout  = 10 * time.Second
	DefaultStartTimeout  = 300 * time.Second
)

// Interface is the NB-IoT interface of one modem. It holds no state of its
// own beyond its options; all link state lives in the driver Session.
type Interface struct {
	modem  Modem
	driver Driver
	logger *slog.Logger

	readyInterval time.Duration
	startInterval time.Duration
}

type Option func(*Interface)

func WithLogger(l *slog.Logger) Option {
	return func(i *Interface) {
		i.logger = l
	}
}

// WithReadyInterval sets the spacing of the AT probes sent by Ready.
func WithReadyInterval(d time.Duration) Option {
	return func(i *Interface) {
		i.readyInterval = d
	}
}

// WithStartInterval sets the network status polling period of Start.
func WithStartInterval(d time.Duration) Option {
	return func(i *Interface) {
		i.startInterval = d
	}
}

// New returns the interface for m. A nil m yields an interface whose
// operations all fail with ErrDriverUnknown.
func New(m Modem, opts ...Option) *Interface {
	i := &Interface{
		modem:         m,
		readyInterval: DefaultReadyInterval,
		startInterval: DefaultStartInterval,
	}
	if m != nil {
		i.driver = DriverSaraN2
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.New(slog.DiscardHandler)
	}
	return i
}

// Driver returns the identity of the driver in use.
func (i *Interface) Driver() Driver {
	return i.driver
}

func (i *Interface) check() error {
	if i.driver != DriverSaraN2 {
		return ErrDriverUnknown
	}
	return nil
}

// Close releases the modem.
func (i *Interface) Close() error {
	if err := i.check(); err != nil {
		return err
	}
	return i.modem.Close()
}

// Session returns the cached link state.
func (i *Interface) Session() (modem.Session, error) {
	if err := i.check(); err != nil {
		return modem.Session{}, err
	}
	return i.modem.Session(), nil
}
