package nbiot_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"thingpilot.io/nbiot/modem"
	"thingpilot.io/nbiot/nbiot"
)

// fakeSaraN2 simulates the SARA-N2 AT dialogue closely enough for the
// interface procedures: indicators, timers, NCONFIG and a CoAP server.
type fakeSaraN2 struct {
	mu sync.Mutex

	radio      int
	registered int
	connected  int
	psm        int
	psmMode    int
	// URC settings (<n>) of the three indicators, cleared by a reboot
	ceregN, csconN, npsmrN int
	t3412      string
	t3324      string
	nconfig    map[string]bool

	// noSIM makes AT+CEREG? fail as it does without a SIM
	noSIM bool
	// registerAfter is the number of AT+CEREG? polls after a reboot before
	// the modem reports home registration; negative never registers
	registerAfter int
	polls         int
	// silentATs is the number of bare AT commands left unanswered
	silentATs int
	// failBlock makes the POST of that block number fail; -1 disables
	failBlock int
	uri       string
}

func newFakeSaraN2() *fakeSaraN2 {
	return &fakeSaraN2{
		t3412:         "01000011",
		t3324:         "00000101",
		nconfig:       map[string]bool{},
		registerAfter: -1,
		failBlock:     -1,
	}
}

func (f *fakeSaraN2) set(fn func(*fakeSaraN2)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSaraN2) respond(cmd string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	const ok = "OK\r\n"
	switch {
	case cmd == "AT":
		if f.silentATs > 0 {
			f.silentATs--
			return ""
		}
		return ok
	case cmd == "AT+CMEE=1":
		return ok
	case cmd == "AT+CEREG=1":
		f.ceregN = 1
		return ok
	case cmd == "AT+CSCON=1":
		f.csconN = 1
		return ok
	case cmd == "AT+NPSMR=1":
		f.npsmrN = 1
		return ok
	case cmd == "AT+NRB":
		f.polls = 0
		f.registered, f.connected, f.psm = 0, 0, 0
		f.ceregN, f.csconN, f.npsmrN = 0, 0, 0
		if f.nconfig["AUTOCONNECT"] {
			f.radio = 1
		}
		return "REBOOTING\r\nREADY\r\n"

	case cmd == "AT+CFUN=1":
		f.radio = 1
		return ok
	case cmd == "AT+CFUN=0":
		f.radio = 0
		f.registered, f.connected = 0, 0
		return ok
	case cmd == "AT+CFUN?":
		return fmt.Sprintf("+CFUN: %d\r\nOK\r\n", f.radio)
	case cmd == "AT+CGATT=1", cmd == "AT+CGATT=0", cmd == "AT+COPS=0", cmd == "AT+COPS=2":
		return ok

	case cmd == "AT+CSCON?":
		return fmt.Sprintf("+CSCON: %d,%d\r\nOK\r\n", f.csconN, f.connected)
	case cmd == "AT+CEREG?":
		if f.noSIM {
			return "+CME ERROR: 13\r\n"
		}
		f.polls++
		if f.registerAfter >= 0 && f.polls > f.registerAfter && f.radio == 1 {
			f.registered, f.connected = 1, 1
		}
		return fmt.Sprintf("+CEREG: %d,%d\r\nOK\r\n", f.ceregN, f.registered)
	case cmd == "AT+NPSMR?":
		if f.npsmrN == 0 {
			// the mode is only reported while the URC is enabled
			return "+NPSMR: 0\r\nOK\r\n"
		}
		return fmt.Sprintf("+NPSMR: 1,%d\r\nOK\r\n", f.psm)

	case cmd == "AT+CPSMS=1":
		f.psmMode = 1
		return ok
	case cmd == "AT+CPSMS=0":
		f.psmMode = 0
		return ok
	case cmd == "AT+CPSMS?":
		return fmt.Sprintf("+CPSMS: %d,,,\"%s\",\"%s\"\r\nOK\r\n", f.psmMode, f.t3412, f.t3324)
	case strings.HasPrefix(cmd, `AT+CPSMS=1,,,,"`):
		f.psmMode = 1
		f.t3324 = strings.Trim(strings.TrimPrefix(cmd, `AT+CPSMS=1,,,,`), `"`)
		return ok
	case strings.HasPrefix(cmd, `AT+CPSMS=1,,,"`):
		f.psmMode = 1
		f.t3412 = strings.Trim(strings.TrimPrefix(cmd, `AT+CPSMS=1,,,`), `"`)
		return ok

	case cmd == "AT+NCONFIG?":
		keys := make([]string, 0, len(f.nconfig))
		for k := range f.nconfig {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			v := "FALSE"
			if f.nconfig[k] {
				v = "TRUE"
			}
			fmt.Fprintf(&b, "+NCONFIG: \"%s\",\"%s\"\r\n", k, v)
		}
		return b.String() + ok
	case strings.HasPrefix(cmd, "AT+NCONFIG="):
		kv := strings.Split(strings.TrimPrefix(cmd, "AT+NCONFIG="), ",")
		f.nconfig[strings.Trim(kv[0], `"`)] = strings.Trim(kv[1], `"`) == "TRUE"
		return ok

	case cmd == "AT+CSQ":
		return "+CSQ: 20,99\r\nOK\r\n"
	case cmd == "AT+NUESTATS":
		return "Signal power:-795\r\nEARFCN:3500\r\nPCI:195\r\nOK\r\n"

	case strings.HasPrefix(cmd, "AT+UCOAP=1,"):
		f.uri = strings.Trim(strings.TrimPrefix(cmd, "AT+UCOAP=1,"), `"`)
		return ok
	case strings.HasPrefix(cmd, "AT+UCOAP="), cmd == "AT+USELCP=1":
		return ok
	case cmd == "AT+UCOAPC=1":
		return fmt.Sprintf("OK\r\n+UCOAPCD: 205,\"%s\"\r\n", f.uri)
	case cmd == "AT+UCOAPC=2":
		return "OK\r\n+UCOAPCD: 202\r\n"
	case strings.HasPrefix(cmd, "AT+UCOAPC=3,"):
		return "OK\r\n+UCOAPCD: 204\r\n"
	case strings.HasPrefix(cmd, "AT+UCOAPC=4,"):
		fields := strings.Split(cmd, ",")
		block, more := fields[len(fields)-2], fields[len(fields)-1]
		if block == fmt.Sprint(f.failBlock) {
			return "+CME ERROR: 159\r\n"
		}
		if more == "1" {
			return "OK\r\n+UCOAPCD: 231\r\n"
		}
		return "OK\r\n+UCOAPCD: 201\r\n"
	}
	return "ERROR\r\n"
}

// startInterface runs a modem over the fake and wraps it in an Interface.
func startInterface(t *testing.T, fake *fakeSaraN2, opts ...nbiot.Option) (*nbiot.Interface, *modem.TestTransport) {
	t.Helper()

	transport := modem.NewRespondingTransport(fake.respond)
	config, err := modem.NewConfigBuilder().
		WithDialer(transport.Dialer()).
		WithATTimeout(100 * time.Millisecond).
		WithNetworkTimeout(100 * time.Millisecond).
		WithCoAPTimeout(100 * time.Millisecond).
		WithRebootTimeout(100 * time.Millisecond).
		WithInitTimeout(time.Second).
		Build()
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

	i := nbiot.New(m, opts...)
	t.Cleanup(func() {
		cancel()
		_ = i.Close()
		if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			t.Errorf("modem loop error: %v", err)
		}
	})
	return i, transport
}

// writesSince returns the commands written after the first n.
func writesSince(transport *modem.TestTransport, n int) []string {
	return transport.Writes()[n:]
}
