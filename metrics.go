package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"thingpilot.io/nbiot/gprstimer"
	"thingpilot.io/nbiot/modem"
	"thingpilot.io/nbiot/nbiot"
)

// SessionSource exposes the link state cached by the modem without I/O.
type SessionSource interface {
	Session() (modem.Session, error)
}

// Exporter is a Prometheus collector over the cached modem session.
// Indicators the modem has not reported since its last reboot are omitted.
type Exporter struct {
	registered *prometheus.Desc
	connected  *prometheus.Desc
	psm        *prometheus.Desc
	radio      *prometheus.Desc
	status     *prometheus.Desc
	rssi       *prometheus.Desc
	ber        *prometheus.Desc
	earfcn     *prometheus.Desc
	tau        *prometheus.Desc
	activeTime *prometheus.Desc
	age        *prometheus.Desc

	source SessionSource
	logger *slog.Logger
}

// NewExporter returns an Exporter reading from source.
func NewExporter(source SessionSource, logger *slog.Logger) *Exporter {
	namespace := "nbiot"

	return &Exporter{
		source: source,
		logger: logger,
		registered: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "registration"),
			"EPS registration status as reported by +CEREG",
			nil,
			nil,
		),
		connected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "rrc_connected"),
			"RRC connection state (1=connected, 0=idle)",
			nil,
			nil,
		),
		psm: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "psm"),
			"Power save mode state (1=in PSM, 0=active)",
			nil,
			nil,
		),
		radio: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "modem", "radio"),
			"Radio functionality level as reported by +CFUN",
			nil,
			nil,
		),
		status: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "status"),
			"Connection status derived from the registration, RRC and PSM indicators",
			[]string{"status"},
			nil,
		),
		rssi: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "signal", "rssi"),
			"Received signal strength indicator (0-31, 99=unknown)",
			nil,
			nil,
		),
		ber: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "signal", "ber"),
			"Channel bit error rate (0-7, 99=unknown)",
			nil,
			nil,
		),
		earfcn: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cell", "earfcn"),
			"Downlink EARFCN of the serving cell",
			[]string{"band"},
			nil,
		),
		tau: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "timer", "tau_seconds"),
			"Requested periodic TAU (T3412) in seconds",
			nil,
			nil,
		),
		activeTime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "timer", "active_time_seconds"),
			"Requested active time (T3324) in seconds",
			nil,
			nil,
		),
		age: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "age_seconds"),
			"Seconds since the cached session state last changed",
			nil,
			nil,
		),
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.registered
	ch <- e.connected
	ch <- e.psm
	ch <- e.radio
	ch <- e.status
	ch <- e.rssi
	ch <- e.ber
	ch <- e.earfcn
	ch <- e.tau
	ch <- e.activeTime
	ch <- e.age
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s, err := e.source.Session()
	if err != nil {
		e.logger.Warn("Failed to read modem session", "error", err)
		return
	}

	gauge := func(desc *prometheus.Desc, v int) {
		if v == modem.Unknown {
			return
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v))
	}
	gauge(e.registered, s.Registered)
	gauge(e.connected, s.Connected)
	gauge(e.psm, s.PSM)
	gauge(e.radio, s.Radio)
	gauge(e.rssi, s.Power)
	gauge(e.ber, s.Quality)

	status := nbiot.StatusOfIndicators(s.Registered, s.Connected, s.PSM)
	ch <- prometheus.MustNewConstMetric(e.status, prometheus.GaugeValue, float64(status), status.String())

	if s.EARFCN != 0 {
		ch <- prometheus.MustNewConstMetric(e.earfcn, prometheus.GaugeValue, float64(s.EARFCN), s.Band.String())
	}

	if unit, multiples, err := gprstimer.DecodeT3412(s.T3412); err == nil {
		ch <- prometheus.MustNewConstMetric(e.tau, prometheus.GaugeValue, unit.Duration(multiples).Seconds())
	}
	if unit, multiples, err := gprstimer.DecodeT3324(s.T3324); err == nil {
		ch <- prometheus.MustNewConstMetric(e.activeTime, prometheus.GaugeValue, unit.Duration(multiples).Seconds())
	}

	if !s.UpdatedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(e.age, prometheus.GaugeValue, time.Since(s.UpdatedAt).Seconds())
	}
}

// Refresher is the subset of the interface polled to keep the session
// statistics current.
type Refresher interface {
	CSQ(ctx context.Context) (power, quality int, err error)
	NUEStats(ctx context.Context) (modem.NUEStats, error)
	TAUTimerRaw(ctx context.Context) (string, error)
}

// RefreshStats queries signal quality, cell statistics and timers every
// interval until ctx is done. The answers land in the session read by the
// Exporter.
func RefreshStats(ctx context.Context, r Refresher, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		refreshStats(ctx, r, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func refreshStats(ctx context.Context, r Refresher, logger *slog.Logger) {
	if _, _, err := r.CSQ(ctx); err != nil {
		logger.Debug("Failed to refresh signal quality", "error", err)
	}
	if _, err := r.NUEStats(ctx); err != nil {
		logger.Debug("Failed to refresh cell statistics", "error", err)
	}
	if _, err := r.TAUTimerRaw(ctx); err != nil {
		logger.Debug("Failed to refresh timers", "error", err)
	}
}
