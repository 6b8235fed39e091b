package modem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"thingpilot.io/nbiot/modem"
)

func TestSessionTracksURCs(t *testing.T) {
	m, transport := startModem(t, NewScript().Responder())

	s := m.Session()
	assert.Equal(t, modem.Unknown, s.Registered)
	assert.Equal(t, modem.Unknown, s.Connected)
	assert.Equal(t, modem.Unknown, s.PSM)

	transport.SendData("+CEREG: 1,\"0001\",\"01A2\",9\r\n+CSCON: 1\r\n+NPSMR: 0\r\nREBOOTING\r\n")

	for range 4 {
		select {
		case <-m.URC():
		case <-time.After(time.Second):
			t.Fatal("URC not dispatched")
		}
	}

	s = m.Session()
	assert.Equal(t, 1, s.Registered)
	assert.Equal(t, 1, s.Connected)
	assert.Equal(t, 0, s.PSM)
	assert.True(t, s.Rebooting)

	transport.SendData("READY\r\n")
	<-m.URC()
	s = m.Session()
	assert.False(t, s.Rebooting)
	assert.Equal(t, modem.Unknown, s.Registered, "READY resets the session")
	assert.Equal(t, modem.Unknown, s.Connected)
	assert.Equal(t, modem.Unknown, s.PSM)
}

func TestSessionIgnoresMalformedURC(t *testing.T) {
	m, transport := startModem(t, NewScript().Responder())

	transport.SendData("+CSCON: x\r\n")
	<-m.URC()

	assert.Equal(t, modem.Unknown, m.Session().Connected)
	assert.NoError(t, m.AT(context.Background()))
}
