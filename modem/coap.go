package modem

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"thingpilot.io/nbiot/at"
)

const (
	// MaxURILength is the longest URI a CoAP profile holds.
	MaxURILength = 200
	// MaxBlockSize is the largest payload one AT+UCOAPC transaction carries.
	MaxBlockSize = 512
	// CoAPProfiles is the number of profiles stored in the modem.
	CoAPProfiles = 4
)

// ContentFormat is the data identifier of a CoAP payload.
type ContentFormat int

const (
	TextPlain ContentFormat = iota
	ApplicationLinkFormat
	ApplicationXML
	ApplicationOctetStream
	ApplicationRDFXML
	ApplicationEXI
	ApplicationJSON
	ApplicationCBOR
)

// Valid reports whether f is one of the enumerated content formats.
func (f ContentFormat) Valid() bool {
	return f >= TextPlain && f <= ApplicationCBOR
}

// CoAPVerb is the request method of AT+UCOAPC.
type CoAPVerb int

const (
	CoAPGet    CoAPVerb = 1
	CoAPDelete CoAPVerb = 2
	CoAPPut    CoAPVerb = 3
	CoAPPost   CoAPVerb = 4
)

// CoAPResponse is the server answer reported by +UCOAPCD.
type CoAPResponse struct {
	// Code is the CoAP response code as class*100+detail, e.g. 205 for 2.05
	Code int
	Body []byte
}

// SelectProfile makes profile the target of subsequent AT+UCOAP settings.
func (m *Modem) SelectProfile(ctx context.Context, profile int) error {
	return m.profileOp(ctx, at.CmdCoAPSelect, profile)
}

// SaveProfile stores profile in NVM.
func (m *Modem) SaveProfile(ctx context.Context, profile int) error {
	return m.profileOp(ctx, at.CmdCoAPSave, profile)
}

// LoadProfile restores profile from NVM.
func (m *Modem) LoadProfile(ctx context.Context, profile int) error {
	return m.profileOp(ctx, at.CmdCoAPLoad, profile)
}

func (m *Modem) profileOp(ctx context.Context, format string, profile int) error {
	if profile < 0 || profile >= CoAPProfiles {
		return fmt.Errorf("%w: CoAP profile %d", ErrOutOfRange, profile)
	}
	_, err := m.exec(ctx, fmt.Sprintf(format, profile))
	return err
}

// SetCoAPIPPort sets the server address of the selected profile.
func (m *Modem) SetCoAPIPPort(ctx context.Context, ipv4 string, port uint16) error {
	addr, err := netip.ParseAddr(ipv4)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("%w: IPv4 address %q", ErrInvalidArgument, ipv4)
	}
	_, err = m.exec(ctx, fmt.Sprintf(at.CmdCoAPIPPort, addr, port))
	return err
}

// SetCoAPURI sets the URI of the selected profile to the first length
// bytes of uri. length may not exceed MaxURILength.
func (m *Modem) SetCoAPURI(ctx context.Context, uri string, length int) error {
	if length > MaxURILength {
		return fmt.Errorf("%w: URI length %d exceeds %d", ErrOutOfRange, length, MaxURILength)
	}
	if length < 0 || length > len(uri) {
		return fmt.Errorf("%w: URI length %d for %d bytes", ErrInvalidArgument, length, len(uri))
	}
	uri = uri[:length]
	if err := quotable(uri); err != nil {
		return err
	}
	_, err := m.exec(ctx, fmt.Sprintf(at.CmdCoAPURI, uri))
	return err
}

// AddURIPathHeader makes the selected profile include the Uri-Path
// option in the PDU.
func (m *Modem) AddURIPathHeader(ctx context.Context) error {
	_, err := m.exec(ctx, fmt.Sprintf(at.CmdCoAPPDUHeader, at.PDUOptionURIPath, at.PDUOptionIncluded))
	return err
}

// SetProfileValidity marks the selected profile valid or invalid.
func (m *Modem) SetProfileValidity(ctx context.Context, valid bool) error {
	_, err := m.exec(ctx, fmt.Sprintf(at.CmdCoAPValidity, boolInt(valid)))
	return err
}

// SelectCoAPInterface routes CoAP through the AT interface (AT+USELCP=1).
func (m *Modem) SelectCoAPInterface(ctx context.Context) error {
	_, err := m.exec(ctx, at.CmdSelectCoAP)
	return err
}

// CoAPGet issues a GET on the loaded profile.
func (m *Modem) CoAPGet(ctx context.Context) (CoAPResponse, error) {
	return m.coap(ctx, fmt.Sprintf(at.CmdCoAPVerb, CoAPGet))
}

// CoAPDelete issues a DELETE on the loaded profile.
func (m *Modem) CoAPDelete(ctx context.Context) (CoAPResponse, error) {
	return m.coap(ctx, fmt.Sprintf(at.CmdCoAPVerb, CoAPDelete))
}

// CoAPPut issues a PUT with a payload of at most MaxBlockSize bytes.
func (m *Modem) CoAPPut(ctx context.Context, payload []byte, format ContentFormat) (CoAPResponse, error) {
	if err := validPayload(payload, format); err != nil {
		return CoAPResponse{}, err
	}
	return m.coap(ctx, fmt.Sprintf(at.CmdCoAPVerbData, CoAPPut, payload, format))
}

// CoAPPostBlock issues a POST carrying one block of a block-wise
// transfer. more is set on every block but the last.
func (m *Modem) CoAPPostBlock(ctx context.Context, block []byte, format ContentFormat, num int, more bool) (CoAPResponse, error) {
	if err := validPayload(block, format); err != nil {
		return CoAPResponse{}, err
	}
	if num < 0 {
		return CoAPResponse{}, fmt.Errorf("%w: block number %d", ErrInvalidArgument, num)
	}
	return m.coap(ctx, fmt.Sprintf(at.CmdCoAPVerbBlock, CoAPPost, block, format, num, boolInt(more)))
}

func (m *Modem) coap(ctx context.Context, cmd string) (CoAPResponse, error) {
	lines, err := m.do(ctx, request{cmd: cmd, await: at.UrcCoAPData, timeout: m.config.coapTimeout})
	if err != nil {
		return CoAPResponse{}, err
	}
	return parseCoAPResponse(lines)
}

// parseCoAPResponse reads +UCOAPCD: <code>[,"<body>"]
func parseCoAPResponse(lines []string) (CoAPResponse, error) {
	for _, line := range lines {
		f, ok := at.Fields(line, at.UrcCoAPData)
		if !ok || len(f) == 0 {
			continue
		}
		code, err := strconv.Atoi(f[0])
		if err != nil {
			return CoAPResponse{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, line)
		}
		resp := CoAPResponse{Code: code}
		if len(f) > 1 {
			resp.Body = []byte(f[1])
		}
		return resp, nil
	}
	return CoAPResponse{}, fmt.Errorf("%w: no CoAP response in %q", ErrUnexpectedResponse, lines)
}

// CheckPayload reports whether payload and format can be carried by
// AT+UCOAPC, regardless of size.
func CheckPayload(payload []byte, format ContentFormat) error {
	if !format.Valid() {
		return fmt.Errorf("%w: content format %d", ErrInvalidArgument, format)
	}
	return quotable(string(payload))
}

func validPayload(payload []byte, format ContentFormat) error {
	if len(payload) > MaxBlockSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrOutOfRange, len(payload), MaxBlockSize)
	}
	return CheckPayload(payload, format)
}

// quotable rejects strings that would break a quoted AT parameter.
func quotable(s string) error {
	if i := strings.IndexAny(s, "\"\r\n"); i >= 0 {
		return fmt.Errorf("%w: %q not allowed in a quoted parameter", ErrInvalidArgument, s[i])
	}
	return nil
}
