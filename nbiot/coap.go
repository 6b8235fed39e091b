package nbiot

import (
	"context"
	"fmt"

	"thingpilot.io/nbiot/modem"
)

// Profile is the CoAP profile used by every request.
const Profile = 0

// BlockSize is the POST block size.
const BlockSize = modem.MaxBlockSize

// ConfigureCoAP writes the server address and URI to profile 0, requests the
// Uri-Path option in every PDU, marks the profile valid and saves it to NVM.
// uriLength is the number of bytes of uri to use and may not exceed 200.
func (i *Interface) ConfigureCoAP(ctx context.Context, ipv4 string, port uint16, uri string, uriLength int) error {
	if err := i.check(); err != nil {
		return err
	}
	if uriLength > modem.MaxURILength {
		return fmt.Errorf("%w: URI length %d", ErrExceedsMaxValue, uriLength)
	}

	steps := []func() error{
		func() error { return i.modem.SelectProfile(ctx, Profile) },
		func() error { return i.modem.SetCoAPIPPort(ctx, ipv4, port) },
		func() error { return i.modem.SetCoAPURI(ctx, uri, uriLength) },
		func() error { return i.modem.AddURIPathHeader(ctx) },
		func() error { return i.modem.SetProfileValidity(ctx, true) },
		func() error { return i.modem.SaveProfile(ctx, Profile) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// prepare loads profile 0 and routes CoAP through the AT interface.
func (i *Interface) prepare(ctx context.Context) error {
	if err := i.modem.LoadProfile(ctx, Profile); err != nil {
		return err
	}
	return i.modem.SelectCoAPInterface(ctx)
}

// CoAPGet sends a GET to the configured URI.
func (i *Interface) CoAPGet(ctx context.Context) (modem.CoAPResponse, error) {
	if err := i.check(); err != nil {
		return modem.CoAPResponse{}, err
	}
	if err := i.prepare(ctx); err != nil {
		return modem.CoAPResponse{}, err
	}
	return i.modem.CoAPGet(ctx)
}

// CoAPDelete sends a DELETE to the configured URI.
func (i *Interface) CoAPDelete(ctx context.Context) (modem.CoAPResponse, error) {
	if err := i.check(); err != nil {
		return modem.CoAPResponse{}, err
	}
	if err := i.prepare(ctx); err != nil {
		return modem.CoAPResponse{}, err
	}
	return i.modem.CoAPDelete(ctx)
}

// CoAPPut sends a PUT of at most BlockSize bytes to the configured URI.
func (i *Interface) CoAPPut(ctx context.Context, payload []byte, format modem.ContentFormat) (modem.CoAPResponse, error) {
	if err := i.check(); err != nil {
		return modem.CoAPResponse{}, err
	}
	if len(payload) > BlockSize {
		return modem.CoAPResponse{}, fmt.Errorf("%w: PUT payload of %d bytes", ErrExceedsMaxValue, len(payload))
	}
	if err := modem.CheckPayload(payload, format); err != nil {
		return modem.CoAPResponse{}, err
	}
	if err := i.prepare(ctx); err != nil {
		return modem.CoAPResponse{}, err
	}
	return i.modem.CoAPPut(ctx, payload, format)
}

// CoAPPost sends payload to the configured URI in consecutive BlockSize
// blocks numbered from 0, with the more flag set on all but the last. An
// empty payload is sent as a single empty block. The response to the last
// block is returned; the first failing block aborts the transfer.
func (i *Interface) CoAPPost(ctx context.Context, payload []byte, format modem.ContentFormat) (modem.CoAPResponse, error) {
	if err := i.check(); err != nil {
		return modem.CoAPResponse{}, err
	}
	if err := modem.CheckPayload(payload, format); err != nil {
		return modem.CoAPResponse{}, err
	}
	if err := i.prepare(ctx); err != nil {
		return modem.CoAPResponse{}, err
	}

	blocks := Blocks(len(payload))
	var resp modem.CoAPResponse
	for n := range blocks {
		start := n * BlockSize
		end := min(start+BlockSize, len(payload))
		more := n < blocks-1

		var err error
		resp, err = i.modem.CoAPPostBlock(ctx, payload[start:end], format, n, more)
		if err != nil {
			return modem.CoAPResponse{}, fmt.Errorf("POST block %d of %d: %w", n, blocks, err)
		}
		i.logger.Debug("CoAP block sent", "block", n, "more", more, "code", resp.Code)
	}
	return resp, nil
}

// Blocks returns the number of POST blocks for a payload of length bytes.
func Blocks(length int) int {
	if length <= 0 {
		return 1
	}
	return (length + BlockSize - 1) / BlockSize
}
