package modem

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Responder answers a command line, written without its CRLF, with the
// raw bytes the modem would send back. An empty answer sends nothing.
type Responder func(cmd string) string

// TestTransport is a test helper that simulates a blocking transport using channels.
// This is needed because the reader goroutine continuously reads from the transport,
// and we need reads to block until data is available (like a real serial port would).
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	respond  Responder
	writes   []string

	// pending is only touched by the single reader
	pending []byte
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
	}
}

// NewRespondingTransport creates a test transport that answers every write
// with fn.
func NewRespondingTransport(fn Responder) *TestTransport {
	t := NewTestTransport()
	t.respond = fn
	return t
}

// Respond replaces the responder.
func (t *TestTransport) Respond(fn Responder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.respond = fn
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	cmd := strings.TrimRight(string(p), "\r\n")

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	t.writes = append(t.writes, cmd)
	respond := t.respond
	t.mu.Unlock()

	if respond != nil {
		if resp := respond(cmd); resp != "" {
			t.SendData(resp)
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	if len(t.pending) == 0 {
		data, ok := <-t.readChan
		if !ok {
			return 0, io.EOF
		}
		t.pending = data
	}
	n = copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes returns every command line written so far, in order.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Dialer returns a Dialer that hands out this transport.
func (t *TestTransport) Dialer() Dialer {
	return testDialer{t}
}

type testDialer struct{ t *TestTransport }

func (d testDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.t, nil
}
