package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"thingpilot.io/nbiot/modem"
	"thingpilot.io/nbiot/nbiot"
)

// Gateway is the part of nbiot.Interface the HTTP server drives.
type Gateway interface {
	CachedNetworkStatus() (nbiot.NetworkStatus, error)
	ModuleNetworkStatus(ctx context.Context) (nbiot.NetworkStatus, error)
	CSQ(ctx context.Context) (power, quality int, err error)
	NUEStats(ctx context.Context) (modem.NUEStats, error)
	CoAPGet(ctx context.Context) (modem.CoAPResponse, error)
	CoAPPost(ctx context.Context, payload []byte, format modem.ContentFormat) (modem.CoAPResponse, error)
}

var _ Gateway = (*nbiot.Interface)(nil)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger  *slog.Logger
	Gateway Gateway
	// Metrics serves /metrics when set
	Metrics http.Handler
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /signal", s.handleSignal)
	mux.HandleFunc("GET /coap", s.handleCoAPGet)
	mux.HandleFunc("POST /coap", s.handleCoAPPost)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, err error, statusCode int) {
	type ErrorResponse struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	resp := ErrorResponse{Message: err.Error(), Code: int(nbiot.StatusOf(err))}
	s.sendJSON(w, resp, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to write response", "error", err)
	}
}

// httpStatus maps a driver error to an HTTP status.
func httpStatus(err error) int {
	switch nbiot.StatusOf(err) {
	case nbiot.CodeInvalidArgument, nbiot.ErrExceedsMaxValue, nbiot.ErrInvalidUnitValue:
		return http.StatusBadRequest
	case nbiot.CodeTimeout:
		return http.StatusGatewayTimeout
	case nbiot.CodeClosed, nbiot.ErrDriverUnknown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

type statusResponse struct {
	Status     string `json:"status"`
	Registered int    `json:"registered"`
	Connected  int    `json:"connected"`
	PSM        int    `json:"psm"`
	Cached     bool   `json:"cached"`
}

// handleStatus reports the connection status. ?cached=true answers from the
// session without talking to the modem.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cached, _ := strconv.ParseBool(r.URL.Query().Get("cached"))

	var (
		status nbiot.NetworkStatus
		err    error
	)
	if cached {
		status, err = s.Gateway.CachedNetworkStatus()
	} else {
		status, err = s.Gateway.ModuleNetworkStatus(r.Context())
	}
	if err != nil {
		s.Logger.Error("Failed to read network status", "error", err)
		s.sendError(w, err, httpStatus(err))
		return
	}

	s.sendJSON(w, statusResponse{
		Status:     status.Status.String(),
		Registered: status.Registered,
		Connected:  status.Connected,
		PSM:        status.PSM,
		Cached:     cached,
	}, http.StatusOK)
}

type signalResponse struct {
	RSSI   int    `json:"rssi"`
	BER    int    `json:"ber"`
	RSRP   int    `json:"rsrp"`
	SNR    int    `json:"snr"`
	EARFCN uint32 `json:"earfcn"`
	Band   string `json:"band"`
	PCI    int    `json:"pci"`
	CellID uint32 `json:"cell_id"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	power, quality, err := s.Gateway.CSQ(r.Context())
	if err != nil {
		s.Logger.Error("Failed to read signal quality", "error", err)
		s.sendError(w, err, httpStatus(err))
		return
	}
	stats, err := s.Gateway.NUEStats(r.Context())
	if err != nil {
		s.Logger.Error("Failed to read cell statistics", "error", err)
		s.sendError(w, err, httpStatus(err))
		return
	}

	s.sendJSON(w, signalResponse{
		RSSI:   power,
		BER:    quality,
		RSRP:   stats.RSRP,
		SNR:    stats.SNR,
		EARFCN: stats.EARFCN,
		Band:   modem.BandFromEARFCN(stats.EARFCN).String(),
		PCI:    stats.PCI,
		CellID: stats.CellID,
	}, http.StatusOK)
}

type coapResponse struct {
	Code int    `json:"code"`
	Body string `json:"body,omitempty"`
}

func (s *Server) handleCoAPGet(w http.ResponseWriter, r *http.Request) {
	resp, err := s.Gateway.CoAPGet(r.Context())
	if err != nil {
		s.Logger.Error("CoAP GET failed", "error", err)
		s.sendError(w, err, httpStatus(err))
		return
	}
	s.sendJSON(w, coapResponse{Code: resp.Code, Body: string(resp.Body)}, http.StatusOK)
}

// handleCoAPPost forwards the request body to the CoAP server. The content
// format is taken from the ?format= query parameter and defaults to text.
func (s *Server) handleCoAPPost(w http.ResponseWriter, r *http.Request) {
	format := modem.TextPlain
	if f := r.URL.Query().Get("format"); f != "" {
		v, err := strconv.Atoi(f)
		if err != nil {
			s.sendError(w, err, http.StatusBadRequest)
			return
		}
		format = modem.ContentFormat(v)
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.sendError(w, err, http.StatusBadRequest)
		return
	}

	resp, err := s.Gateway.CoAPPost(r.Context(), payload, format)
	if err != nil {
		s.Logger.Error("CoAP POST failed", "error", err, "length", len(payload))
		s.sendError(w, err, httpStatus(err))
		return
	}

	s.Logger.Info("CoAP POST sent", "length", len(payload), "blocks", nbiot.Blocks(len(payload)), "code", resp.Code)
	s.sendJSON(w, coapResponse{Code: resp.Code, Body: string(resp.Body)}, http.StatusOK)
}
