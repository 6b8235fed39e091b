package modem_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"thingpilot.io/nbiot/modem"
)

// ResponseScript answers commands with canned modem output. Answers queued
// for the same command are used in order and the last one repeats.
// Commands without an answer get ERROR.
type ResponseScript struct {
	mu       sync.Mutex
	answers  map[string][]string
	defaults map[string]string
}

// initWrites is what New sends before returning.
var initWrites = []string{"AT", "AT+CMEE=1", "AT+CEREG=1", "AT+CSCON=1", "AT+NPSMR=1"}

// NewScript returns a script that answers the initialisation sequence
// unless told otherwise.
func NewScript() *ResponseScript {
	defaults := map[string]string{}
	for _, cmd := range initWrites {
		defaults[cmd] = "OK\r\n"
	}
	return &ResponseScript{
		answers:  map[string][]string{},
		defaults: defaults,
	}
}

// On queues lines as the answer to cmd. No lines means no answer at all,
// which makes the command time out.
func (s *ResponseScript) On(cmd string, lines ...string) *ResponseScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	var answer string
	for _, l := range lines {
		answer += l + "\r\n"
	}
	s.answers[cmd] = append(s.answers[cmd], answer)
	return s
}

func (s *ResponseScript) Responder() modem.Responder {
	return func(cmd string) string {
		s.mu.Lock()
		defer s.mu.Unlock()
		queue, ok := s.answers[cmd]
		if !ok {
			if answer, ok := s.defaults[cmd]; ok {
				return answer
			}
			return "ERROR\r\n"
		}
		answer := queue[0]
		if len(queue) > 1 {
			s.answers[cmd] = queue[1:]
		}
		return answer
	}
}

// startModem creates a modem over a TestTransport answering with respond
// and runs its Loop until the test ends.
func startModem(t *testing.T, respond modem.Responder, configure ...func(*modem.ConfigBuilder)) (*modem.Modem, *modem.TestTransport) {
	t.Helper()

	transport := modem.NewRespondingTransport(respond)
	builder := modem.NewConfigBuilder().
		WithDialer(transport.Dialer()).
		WithATTimeout(500 * time.Millisecond).
		WithNetworkTimeout(500 * time.Millisecond).
		WithCoAPTimeout(500 * time.Millisecond).
		WithRebootTimeout(500 * time.Millisecond).
		WithInitTimeout(time.Second)
	for _, fn := range configure {
		fn(builder)
	}
	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m, err := modem.New(ctx, config)
	if err != nil {
		cancel()
		t.Fatalf("failed to create modem: %v", err)
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- m.Loop(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		_ = m.Close()
		err := <-loopDone
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			t.Errorf("modem loop error: %v", err)
		}
	})
	return m, transport
}

// expectSaraN2 makes the mock transport behave like a modem answering with
// respond. Close is left to the caller; closeFake stops pending reads.
func expectSaraN2(mockTransport *modem.MockTransport, respond modem.Responder) (closeFake func() error) {
	fake := modem.NewRespondingTransport(respond)
	mockTransport.EXPECT().Write(gomock.Any()).DoAndReturn(fake.Write).AnyTimes()
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(fake.Read).AnyTimes()
	return fake.Close
}
