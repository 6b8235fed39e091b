package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"thingpilot.io/nbiot/at"
)

// Modem represents a u-blox SARA-N2 NB-IoT modem that communicates via AT
// commands. All transport I/O is funnelled through a single event loop, so
// exactly one command is in flight at any instant and a caller only ever
// observes the response to its own command.
type Modem struct {
	// transport provides the physical connection to the modem
	transport Transport
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger

	// mu guards closed and loopRunning
	mu sync.Mutex
	// closed indicates if the modem has been shut down
	closed bool
	// loopRunning indicates if the Loop is currently running
	loopRunning bool

	// tokens carries non-empty lines from the reader goroutine
	tokens chan string
	// scanErrs receives the reader's terminal error, if any
	scanErrs chan error
	// urcChan receives Unsolicited Result Codes from the modem
	urcChan chan string
	// commands queues AT command requests for the Loop to process
	commands chan *commandRequest

	handlersMu sync.RWMutex
	handlers   map[string][]URCHandler

	session session

	// loopCtx is cancelled by Close and stops the reader and the Loop
	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// URCHandler receives an unsolicited result code line. Handlers run on the
// Loop goroutine between transactions and must not issue AT commands.
type URCHandler func(line string)

// commandRequest represents an AT command request to be executed by the Loop.
type commandRequest struct {
	// cmd is the AT command line, without line terminator
	cmd string
	// id is the prefix of the command's information lines, e.g. "+CSCON"
	id string
	// await, when set, is the line prefix that completes the command instead
	// of the final OK (READY after a reboot, +UCOAPCD after a CoAP verb)
	await string
	// respChan receives the command response from the Loop
	respChan chan commandResponse
	// ctx provides timeout and cancellation control for the command
	ctx context.Context
}

// commandResponse contains the result of an AT command execution.
type commandResponse struct {
	// lines holds the information lines, without the final result code
	lines []string
	err   error
}

// New creates a new Modem with the given configuration. It establishes the
// transport connection, starts reading from it and runs the initialisation
// sequence: AT, then AT+CMEE=1 and the indicator URCs (see reporting).
//
// Loop must be started once New returns before any other operation.
func New(ctx context.Context, config Config) (*Modem, error) {
	if config.dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		config:    config,
		logger:    config.logger,
		transport: transport,
		tokens:    make(chan string, 10),
		scanErrs:  make(chan error, 1),
		urcChan:   make(chan string, 100), // Buffered to prevent blocking on URCs
		// No queue for commands
		commands: make(chan *commandRequest),
		handlers: make(map[string][]URCHandler),
	}
	m.session.reset()
	m.loopCtx, m.loopCancel = context.WithCancel(context.WithoutCancel(ctx))

	go m.read()

	initCtx, cancel := context.WithTimeout(ctx, config.initTimeout)
	defer cancel()

	if err := m.init(initCtx); err != nil {
		m.loopCancel()
		transport.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// read is the only reader of the transport. It runs from New until the
// transport reports an error or EOF, or the modem is closed.
func (m *Modem) read() {
	defer close(m.tokens)

	scanner := bufio.NewScanner(m.transport)
	scanner.Split(at.Splitter)

	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token == "" {
			continue
		}
		select {
		case m.tokens <- token:
		case <-m.loopCtx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		m.scanErrs <- err
	}
}

// Loop is the main event loop that handles all transport I/O operations.
// It must be called exactly once after New() and before any other modem operations.
// The Loop coordinates all communication with the modem hardware:
//
// 1. Takes one command request at a time from exec() calls
// 2. Writes AT commands to the transport
// 3. Collects information lines until the final result code
// 4. Dispatches URCs (Unsolicited Result Codes) to handlers between transactions
// 5. Expires commands whose deadline passes, releasing the transport
//
// The Loop runs until the provided context is cancelled, the modem is closed
// or the transport reaches EOF.
//
// Usage:
//
//	m, err := modem.New(ctx, config)
//	if err != nil { return err }
//
//	go m.Loop(ctx)
func (m *Modem) Loop(ctx context.Context) error {
	m.mu.Lock()
	if m.loopRunning {
		m.mu.Unlock()
		return ErrLoopRunning
	}
	m.loopRunning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.loopRunning = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.loopCtx, cancel)
	defer stop()

	var (
		current *commandRequest
		lines   []string
		expired <-chan struct{}
	)
	finish := func(resp commandResponse) {
		current.respChan <- resp
		current, lines, expired = nil, nil, nil
	}

	for {
		// A new command is only accepted when none is in flight.
		var commands <-chan *commandRequest
		if current == nil {
			commands = m.commands
		}

		select {
		case <-ctx.Done():
			if current != nil {
				finish(commandResponse{err: ctx.Err()})
			}
			return ctx.Err()

		case <-expired:
			m.logger.Debug("command expired", "cmd", current.cmd, "lines", len(lines))
			finish(commandResponse{lines: lines, err: deadlineError(current.cmd, current.ctx.Err())})

		case req := <-commands:
			if err := m.write(req.cmd); err != nil {
				req.respChan <- commandResponse{err: err}
				continue
			}
			current = req
			expired = req.ctx.Done()

		case token, ok := <-m.tokens:
			if !ok {
				err := io.EOF
				select {
				case scanErr := <-m.scanErrs:
					err = fmt.Errorf("scanner error: %w", scanErr)
				default:
				}
				if current != nil {
					finish(commandResponse{lines: lines, err: err})
				}
				return err
			}

			if current == nil {
				m.unsolicited(token)
				continue
			}
			if token == current.cmd {
				// echo
				continue
			}
			if current.await != "" && strings.HasPrefix(token, current.await) {
				// READY resets the session here, before any URC that follows it.
				m.session.update(token)
				lines = append(lines, token)
				finish(commandResponse{lines: lines})
				continue
			}

			switch at.Classify(token) {
			case at.TypeURC:
				if solicited(current.id, token) {
					lines = append(lines, token)
					continue
				}
				m.dispatchURC(token)

			case at.TypeFinal:
				if err := at.FinalError(token); err != nil {
					finish(commandResponse{lines: lines, err: fmt.Errorf("%s: %w", current.cmd, err)})
					continue
				}
				if current.await != "" {
					continue
				}
				finish(commandResponse{lines: lines})

			case at.TypeData:
				lines = append(lines, token)
			}
		}
	}
}

// solicitedFields is the field count of an indicator's query answer. The
// URC form of the same indicator carries one field less, as <n> is omitted.
var solicitedFields = map[string]int{
	"+CSCON": 2,
	"+CEREG": 2,
	"+NPSMR": 2,
}

// solicited reports whether a URC-classified line is an information line
// of the command with the given id rather than a notification.
func solicited(id, token string) bool {
	if id == "" || !strings.HasPrefix(token, id+":") {
		return false
	}
	f, _ := at.Fields(token, id)
	return len(f) >= solicitedFields[id]
}

// unsolicited handles a line received while no command is in flight.
// Anything but a URC is a leftover of an expired command and is dropped.
func (m *Modem) unsolicited(token string) {
	if at.Classify(token) == at.TypeURC {
		m.dispatchURC(token)
		return
	}
	m.logger.Debug("discarding orphaned line", "line", token)
}

// write flushes pending input and sends one command line.
func (m *Modem) write(cmd string) error {
	if f, ok := m.transport.(inputFlusher); ok {
		if err := f.ResetInputBuffer(); err != nil {
			m.logger.Debug("flush input", "error", err)
		}
	}
	m.logger.Debug("sending command", "cmd", cmd)
	if _, err := m.transport.Write([]byte(cmd + at.CRLF)); err != nil {
		return fmt.Errorf("write command %q: %w", cmd, err)
	}
	return nil
}

// URC returns a read-only channel that receives Unsolicited Result Codes.
// These are asynchronous notifications from the modem (e.g. network status
// changes). The channel is buffered, but may drop some URC if not consumed
// fast enough.
func (m *Modem) URC() <-chan string {
	return m.urcChan
}

// HandleURC registers fn for URC lines beginning with prefix. Built-in
// handlers for +CSCON, +CEREG and +NPSMR keep the Session up to date and
// run before any registered handler.
func (m *Modem) HandleURC(prefix string, fn URCHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[prefix] = append(m.handlers[prefix], fn)
}

func (m *Modem) dispatchURC(line string) {
	m.logger.Debug("urc", "line", line)
	m.session.update(line)

	m.handlersMu.RLock()
	for prefix, fns := range m.handlers {
		if strings.HasPrefix(line, prefix) {
			for _, fn := range fns {
				fn(line)
			}
		}
	}
	m.handlersMu.RUnlock()

	select {
	case m.urcChan <- line:
	default:
		m.logger.Debug("urc channel full, dropping", "line", line)
	}
}

// Close shuts down the modem and releases all resources.
// It stops the event loop, closes the transport connection, and marks
// the modem as closed. After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true

	if m.loopCancel != nil {
		m.loopCancel()
	}
	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

func (m *Modem) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// init performs the initial setup sequence for the modem hardware.
// This method is called during New() and must complete successfully
// before the modem can be used.
func (m *Modem) init(ctx context.Context) error {
	// 1. Wake-up / sanity check. The first character may be swallowed
	// while the UART wakes from deep sleep, so AT is retried.
	for {
		err := m.expectOkDirect(ctx, at.CmdAt)
		if err == nil {
			break
		}
		if ctx.Err() != nil || !errors.Is(err, ErrTimeout) {
			return fmt.Errorf("modem not responding: %w", err)
		}
	}

	// 2. Numeric +CME ERROR codes and indicator URCs
	for _, cmd := range reporting {
		if err := m.expectOkDirect(ctx, cmd); err != nil {
			return fmt.Errorf("could not enable reporting (%s): %w", cmd, err)
		}
	}
	return nil
}

// reporting is sent after power-on and after every reboot. None of these
// settings is kept in NVM.
var reporting = []string{
	at.CmdVerboseErrors,
	at.CmdRegistrationURC,
	at.CmdConnectionURC,
	at.CmdPowerSaveURC,
}

// options of a single transaction
type request struct {
	cmd     string
	await   string
	timeout time.Duration
}

// exec sends an AT command to the modem and waits for the response.
// This method coordinates with the Loop() to ensure serialised command
// execution. The Loop() must be running before calling this method.
// The returned lines exclude the final result code.
func (m *Modem) exec(ctx context.Context, cmd string) ([]string, error) {
	return m.do(ctx, request{cmd: cmd, timeout: m.config.atTimeout})
}

func (m *Modem) do(ctx context.Context, r request) ([]string, error) {
	if m.isClosed() {
		return nil, ErrAlreadyClosed
	}
	if m.transport == nil {
		return nil, ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := &commandRequest{
		cmd:      r.cmd,
		id:       at.CommandID(r.cmd),
		await:    r.await,
		respChan: make(chan commandResponse, 1), // Buffered to prevent blocking
		ctx:      ctx,
	}

	// Send request to Loop
	select {
	case m.commands <- req:
	case <-m.loopCtx.Done():
		return nil, ErrAlreadyClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("command cancelled before sending: %w", deadlineError(r.cmd, ctx.Err()))
	}

	// Wait for response from Loop
	select {
	case resp := <-req.respChan:
		return resp.lines, resp.err
	case <-ctx.Done():
		return nil, deadlineError(r.cmd, ctx.Err())
	}
}

// execDirect executes an AT command directly on the token stream without
// going through the Loop. It is used during modem initialization, before
// the Loop accepts commands.
//
// WARNING: This method should only be used during initialization.
// Use exec() for normal operations.
func (m *Modem) execDirect(ctx context.Context, cmd string) ([]string, error) {
	if m.transport == nil {
		return nil, ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.atTimeout)
	defer cancel()

	if err := m.write(cmd); err != nil {
		return nil, err
	}

	var lines []string
	for {
		select {
		case <-ctx.Done():
			return lines, deadlineError(cmd, ctx.Err())
		case token, ok := <-m.tokens:
			if !ok {
				select {
				case err := <-m.scanErrs:
					return lines, fmt.Errorf("read error: %w", err)
				default:
					return lines, io.EOF
				}
			}
			if token == cmd {
				continue
			}

			switch at.Classify(token) {
			case at.TypeFinal:
				if err := at.FinalError(token); err != nil {
					return lines, fmt.Errorf("%s: %w", cmd, err)
				}
				return lines, nil
			case at.TypeData:
				lines = append(lines, token)
			case at.TypeURC:
				m.dispatchURC(token)
			}
		}
	}
}

// expectOkDirect executes an AT command and validates that it completes
// with OK. Used during initialization for basic configuration commands.
func (m *Modem) expectOkDirect(ctx context.Context, cmd string) error {
	_, err := m.execDirect(ctx, cmd)
	return err
}

// deadlineError maps an expired command context to ErrTimeout. Explicit
// cancellation is passed through.
func deadlineError(cmd string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %q", ErrTimeout, cmd)
	}
	return err
}
