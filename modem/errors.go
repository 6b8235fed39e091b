package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if initialization failed or if the Modem was not created
	// via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, and by any command issued after Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// serving the same Modem.
	ErrLoopRunning = errors.New("loop already running")

	// ErrTimeout is returned when the modem does not complete a command
	// within its deadline. The transport is released for the next command.
	ErrTimeout = errors.New("AT command timeout")

	// ErrUnexpectedResponse is returned when a command completes with OK but
	// its information lines cannot be parsed.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrOutOfRange is returned, before any I/O, for arguments outside the
	// range the modem accepts (URI longer than 200 characters, CoAP profile
	// outside 0..3, payload blocks larger than 512 bytes).
	ErrOutOfRange = errors.New("argument out of range")

	// ErrInvalidArgument is returned, before any I/O, for arguments the modem
	// cannot carry, such as a quote inside a quoted AT parameter or an unknown
	// content format.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoResetLine is returned by HardReset when no ResetLine is configured.
	ErrNoResetLine = errors.New("no reset line configured")
)
