package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.bug.st/serial"
	"thingpilot.io/nbiot/board"
	"thingpilot.io/nbiot/modem"
	"thingpilot.io/nbiot/nbiot"
)

func main() {
	flag.String("serial-port", "/dev/ttyAMA0", "Serial port to connect to the modem")
	flag.Int("baud-rate", modem.DefaultBaudRate, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("board", "wright-v1.0.0", "Carrier board (wright-v1.0.0, devboard-v1.1.0)")
	flag.Bool("gpio", false, "Drive the modem reset line through the host GPIO")
	flag.String("coap-server", "", "IPv4 address of the CoAP server")
	flag.Uint("coap-port", 5683, "UDP port of the CoAP server")
	flag.String("coap-uri", "/", "URI of the CoAP resource")
	flag.Duration("start-timeout", 300*time.Second, "Time to wait for network registration")
	flag.Duration("metrics-interval", time.Minute, "Interval between signal statistics refreshes")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	b, err := board.Parse(config.Board)
	if err != nil {
		logger.Error("Invalid board", "error", err)
		os.Exit(1)
	}

	builder := modem.NewConfigBuilder().
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			Mode: &serial.Mode{
				BaudRate: config.BaudRate,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		})

	if config.GPIO {
		pins, err := b.Pins()
		if err != nil {
			logger.Error("Failed to resolve board pins", "error", err, "board", b)
			os.Exit(1)
		}
		gpio, err := board.Open(pins)
		if err != nil {
			logger.Error("Failed to open GPIO", "error", err)
			os.Exit(1)
		}
		defer gpio.Close()
		logger.Info("Modem control lines", "board", b, "powered", gpio.Powered(), "power_saving", gpio.PowerSaving())
		builder = builder.WithResetLine(gpio)
	}

	modemConfig, err := builder.Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := m.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Modem loop stopped", "error", err)
		}
	}()

	iface := nbiot.New(m,
		nbiot.WithLogger(logger.With("component", "nbiot")),
	)

	logger.Info("Starting NB-IoT gateway", "driver", iface.Driver(), "board", b, "port", config.SerialPort)

	if err := iface.Ready(ctx, nbiot.DefaultReadyTimeout); err != nil {
		logger.Error("Modem not responding", "error", err, "code", nbiot.StatusOf(err))
		os.Exit(1)
	}

	if err := iface.Start(ctx, config.StartTimeout); err != nil {
		// The gateway keeps serving so the status endpoints can report the failure.
		logger.Error("Failed to register to the network", "error", err, "code", nbiot.StatusOf(err))
	}

	if config.CoAPServer != "" {
		if err := iface.ConfigureCoAP(ctx, config.CoAPServer, config.CoAPPort, config.CoAPURI, len(config.CoAPURI)); err != nil {
			logger.Error("Failed to configure CoAP profile", "error", err, "code", nbiot.StatusOf(err))
			os.Exit(1)
		}
		logger.Info("CoAP profile configured", "server", config.CoAPServer, "port", config.CoAPPort, "uri", config.CoAPURI)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewExporter(iface, logger.With("component", "metrics")))
	go RefreshStats(ctx, iface, config.MetricsInterval, logger.With("component", "metrics"))

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Gateway: iface,
			Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	cancel()
	logger.Info("Closing modem connection")
	if err := iface.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}
}
