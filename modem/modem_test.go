package modem_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"thingpilot.io/nbiot/at"
	"thingpilot.io/nbiot/modem"
)

func TestModemNew(t *testing.T) {
	t.Run("Initialization Success", func(t *testing.T) {
		transport := modem.NewRespondingTransport(NewScript().Responder())

		config, err := modem.NewConfigBuilder().
			WithDialer(transport.Dialer()).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m == nil {
			t.Fatal("New() should return valid modem on success")
		}
		defer m.Close()

		if got := transport.Writes(); !slices.Equal(got, initWrites) {
			t.Errorf("expected init sequence %q, got %q", initWrites, got)
		}
	})

	t.Run("Retries AT until the modem wakes up", func(t *testing.T) {
		var calls atomic.Int32
		respond := func(cmd string) string {
			if cmd == "AT" && calls.Add(1) < 3 {
				// first characters swallowed while the UART wakes
				return ""
			}
			return "OK\r\n"
		}
		transport := modem.NewRespondingTransport(respond)

		config, err := modem.NewConfigBuilder().
			WithDialer(transport.Dialer()).
			WithATTimeout(50 * time.Millisecond).
			WithInitTimeout(time.Second).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer m.Close()

		if n := calls.Load(); n != 3 {
			t.Errorf("expected 3 AT attempts, got %d", n)
		}
	})

	t.Run("Closes transport when initialisation fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		closeFake := expectSaraN2(mockTransport, NewScript().On("AT+CMEE=1", "ERROR").Responder())
		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Close().DoAndReturn(closeFake),
		)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if !errors.Is(err, at.ErrError) {
			t.Errorf("expected ERROR from AT+CMEE=1, got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when error occurs")
		}
	})

	t.Run("Times out when the modem never answers", func(t *testing.T) {
		transport := modem.NewRespondingTransport(func(string) string { return "" })

		config, err := modem.NewConfigBuilder().
			WithDialer(transport.Dialer()).
			WithATTimeout(20 * time.Millisecond).
			WithInitTimeout(100 * time.Millisecond).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		_, err = modem.New(context.Background(), config)
		if !errors.Is(err, modem.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got: %v", err)
		}
	})

	t.Run("Dialer error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, errors.New("connection failed"))

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if err == nil {
			t.Error("expected error from dialer failure")
		}
		if m != nil {
			t.Error("New() should return nil modem when dialer fails")
		}
	})

	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		m, err := modem.New(context.Background(), modem.Config{})
		if !errors.Is(err, modem.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer from New(), got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when no dialer provided")
		}
	})

	t.Run("ErrNotInitialized on nil transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, nil)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		_, err = modem.New(context.Background(), config)
		if !errors.Is(err, modem.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized from New(), got: %v", err)
		}
	})
}

func TestModemClose(t *testing.T) {
	newMockModem := func(t *testing.T, closeErr error) *modem.Modem {
		ctrl := gomock.NewController(t)
		t.Cleanup(ctrl.Finish)

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		closeFake := expectSaraN2(mockTransport, NewScript().Responder())
		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Close().DoAndReturn(func() error {
				closeFake()
				return closeErr
			}),
		)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		return m
	}

	t.Run("Closes underlying transport successfully", func(t *testing.T) {
		m := newMockModem(t, nil)
		if err := m.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("Returns transport error on close failure", func(t *testing.T) {
		closeError := errors.New("transport close failed")
		m := newMockModem(t, closeError)
		if err := m.Close(); err != closeError {
			t.Errorf("expected transport error, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on double close", func(t *testing.T) {
		m := newMockModem(t, nil)

		if err := m.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := m.Close(); err != modem.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed on second close, got: %v", err)
		}
	})

	t.Run("Commands fail after close", func(t *testing.T) {
		m, _ := startModem(t, NewScript().Responder())
		if err := m.Close(); err != nil {
			t.Fatalf("unexpected error from Close(): %v", err)
		}
		if err := m.AT(context.Background()); !errors.Is(err, modem.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed, got: %v", err)
		}
	})
}

func TestModemLoop(t *testing.T) {
	newModem := func(t *testing.T) (*modem.Modem, *modem.TestTransport) {
		transport := modem.NewRespondingTransport(NewScript().Responder())
		config, err := modem.NewConfigBuilder().
			WithDialer(transport.Dialer()).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("failed to create modem: %v", err)
		}
		t.Cleanup(func() { m.Close() })
		return m, transport
	}

	t.Run("Starts and stops on EOF", func(t *testing.T) {
		m, transport := newModem(t)

		loopDone := make(chan error, 1)
		go func() {
			loopDone <- m.Loop(context.Background())
		}()

		transport.Close()
		err := <-loopDone
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected Loop to stop with EOF, got: %v", err)
		}
	})

	t.Run("Dispatch URCs to the designated channel", func(t *testing.T) {
		m, transport := newModem(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go m.Loop(ctx)

		transport.SendData("+CSCON: 1\r\n")

		select {
		case urc := <-m.URC():
			if urc != "+CSCON: 1" {
				t.Errorf("expected +CSCON: 1, got: %q", urc)
			}
		case <-time.After(time.Second):
			t.Fatal("expected URC to be received within timeout")
		}

		if s := m.Session(); s.Connected != 1 {
			t.Errorf("expected session to be connected, got %d", s.Connected)
		}
	})

	t.Run("Runs registered URC handlers", func(t *testing.T) {
		m, transport := newModem(t)

		got := make(chan string, 1)
		m.HandleURC(at.UrcRegistration, func(line string) { got <- line })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go m.Loop(ctx)

		transport.SendData("+CEREG: 5\r\n")

		select {
		case line := <-got:
			if line != "+CEREG: 5" {
				t.Errorf("expected +CEREG: 5, got: %q", line)
			}
		case <-time.After(time.Second):
			t.Fatal("handler was not called")
		}
		if s := m.Session(); s.Registered != 5 {
			t.Errorf("expected registration status 5, got %d", s.Registered)
		}
	})

	t.Run("Exits gracefully on context cancellation", func(t *testing.T) {
		m, _ := newModem(t)

		ctx, cancel := context.WithCancel(context.Background())
		loopDone := make(chan error, 1)
		go func() {
			loopDone <- m.Loop(ctx)
		}()

		cancel()
		if err := <-loopDone; !errors.Is(err, context.Canceled) {
			t.Errorf("expected Loop to return context.Canceled, got: %v", err)
		}
	})

	t.Run("Exits when the modem is closed", func(t *testing.T) {
		m, _ := newModem(t)

		loopDone := make(chan error, 1)
		go func() {
			loopDone <- m.Loop(context.Background())
		}()

		m.Close()
		select {
		case <-loopDone:
		case <-time.After(time.Second):
			t.Fatal("Loop kept running after Close")
		}
	})

	t.Run("Handle scanner errors from Transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		fake := modem.NewRespondingTransport(NewScript().Responder())
		scannerError := errors.New("transport read error")

		mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)
		mockTransport.EXPECT().Write(gomock.Any()).DoAndReturn(fake.Write).AnyTimes()
		mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			n, err := fake.Read(p)
			if errors.Is(err, io.EOF) {
				return 0, scannerError
			}
			return n, err
		}).AnyTimes()
		mockTransport.EXPECT().Close().Return(nil)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("failed to create modem: %v", err)
		}
		defer m.Close()

		fake.Close()

		err = m.Loop(context.Background())
		if !errors.Is(err, scannerError) {
			t.Errorf("expected scanner error, got: %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "scanner error") {
			t.Errorf("expected scanner error to be wrapped, got: %v", err)
		}
	})

	t.Run("ErrLoopRunning on consecutive calls", func(t *testing.T) {
		m, _ := newModem(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		loopDone := make(chan error, 1)
		go func() {
			loopDone <- m.Loop(ctx)
		}()

		// Give first Loop time to start and set loopRunning flag
		time.Sleep(10 * time.Millisecond)

		if err := m.Loop(ctx); !errors.Is(err, modem.ErrLoopRunning) {
			t.Errorf("expected ErrLoopRunning, got: %v", err)
		}

		cancel()
		<-loopDone
	})
}

func TestModemExec(t *testing.T) {
	t.Run("CME error carries the numeric code", func(t *testing.T) {
		m, _ := startModem(t, NewScript().On("AT+CFUN=1", "+CME ERROR: 50").Responder())

		err := m.SetRadio(context.Background(), true)

		var cme at.CMEError
		if !errors.As(err, &cme) {
			t.Fatalf("expected CMEError, got: %v", err)
		}
		if cme != 50 {
			t.Errorf("expected CME error 50, got %d", cme)
		}
	})

	t.Run("Timeout releases the transport", func(t *testing.T) {
		script := NewScript().
			On("AT+CSQ").
			On("AT+CSQ", "+CSQ: 20,99", "OK")
		m, transport := startModem(t, script.Responder(), func(b *modem.ConfigBuilder) {
			b.WithATTimeout(50 * time.Millisecond)
		})

		ctx := context.Background()
		if _, _, err := m.CSQ(ctx); !errors.Is(err, modem.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}

		// A late answer to the expired command is discarded.
		transport.SendData("+CSQ: 1,1\r\nOK\r\n")
		time.Sleep(50 * time.Millisecond)

		power, quality, err := m.CSQ(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if power != 20 || quality != 99 {
			t.Errorf("expected 20,99, got %d,%d", power, quality)
		}
	})

	t.Run("Query response sharing a URC prefix is not dispatched", func(t *testing.T) {
		m, _ := startModem(t, NewScript().On("AT+CSCON?", "+CSCON: 0,1", "OK").Responder())

		urc, connected, err := m.CSCON(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if urc != 0 || connected != 1 {
			t.Errorf("expected 0,1, got %d,%d", urc, connected)
		}

		select {
		case line := <-m.URC():
			t.Errorf("query response dispatched as URC: %q", line)
		default:
		}
	})

	t.Run("URC during a command is dispatched", func(t *testing.T) {
		m, _ := startModem(t, NewScript().On("AT+CSQ", "+CEREG: 1", "+CSQ: 10,0", "OK").Responder())

		power, _, err := m.CSQ(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if power != 10 {
			t.Errorf("expected power 10, got %d", power)
		}

		select {
		case line := <-m.URC():
			if line != "+CEREG: 1" {
				t.Errorf("expected +CEREG: 1, got %q", line)
			}
		case <-time.After(time.Second):
			t.Error("URC was not dispatched")
		}
	})

	t.Run("Echo is ignored", func(t *testing.T) {
		m, _ := startModem(t, NewScript().On("AT+CSQ", "AT+CSQ", "+CSQ: 5,3", "OK").Responder())

		power, quality, err := m.CSQ(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if power != 5 || quality != 3 {
			t.Errorf("expected 5,3, got %d,%d", power, quality)
		}
	})

	t.Run("Concurrent callers each get their own response", func(t *testing.T) {
		var n atomic.Int32
		respond := func(cmd string) string {
			switch cmd {
			case "AT+CSQ":
				v := n.Add(1)
				return "+CSQ: " + strconv.Itoa(int(v)) + ",99\r\nOK\r\n"
			}
			if slices.Contains(initWrites, cmd) {
				return "OK\r\n"
			}
			return "ERROR\r\n"
		}
		m, transport := startModem(t, respond)

		const callers = 20
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = map[int]bool{}
		)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				power, _, err := m.CSQ(context.Background())
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				mu.Lock()
				seen[power] = true
				mu.Unlock()
			}()
		}
		wg.Wait()

		if len(seen) != callers {
			t.Errorf("expected %d distinct responses, got %d", callers, len(seen))
		}
		if got := len(transport.Writes()); got != callers+len(initWrites) {
			t.Errorf("expected %d writes, got %d", callers+len(initWrites), got)
		}
	})
}
