package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyAMA0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 57600)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// Board names the carrier board (e.g. "wright-v1.0.0", "devboard-v1.1.0")
	Board string
	// GPIO enables the board reset line through the host GPIO
	GPIO bool
	// CoAPServer is the IPv4 address of the CoAP server; empty skips profile setup
	CoAPServer string
	// CoAPPort is the UDP port of the CoAP server
	CoAPPort uint16
	// CoAPURI is the URI requests are sent to (e.g. "/sink")
	CoAPURI string
	// StartTimeout bounds the wait for network registration at startup
	StartTimeout time.Duration
	// MetricsInterval is how often signal statistics are refreshed
	MetricsInterval time.Duration
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyAMA0"
		c.BaudRate = 57600
		c.LogLevel = "info"
		c.Board = "wright-v1.0.0"
		c.CoAPPort = 5683
		c.CoAPURI = "/"
		c.StartTimeout = 300 * time.Second
		c.MetricsInterval = time.Minute
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if board := os.Getenv("BOARD"); board != "" {
			c.Board = board
		}

		if gpio := os.Getenv("GPIO"); gpio != "" {
			if b, err := strconv.ParseBool(gpio); err == nil {
				c.GPIO = b
			}
		}

		if server := os.Getenv("COAP_SERVER"); server != "" {
			c.CoAPServer = server
		}

		if port := os.Getenv("COAP_PORT"); port != "" {
			if p, err := strconv.ParseUint(port, 10, 16); err == nil {
				c.CoAPPort = uint16(p)
			}
		}

		if uri := os.Getenv("COAP_URI"); uri != "" {
			c.CoAPURI = uri
		}

		if timeout := os.Getenv("START_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.StartTimeout = d
			}
		}

		if interval := os.Getenv("METRICS_INTERVAL"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil {
				c.MetricsInterval = d
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "board":
				c.Board = f.Value.String()
			case "gpio":
				if b, err := strconv.ParseBool(f.Value.String()); err == nil {
					c.GPIO = b
				}
			case "coap-server":
				c.CoAPServer = f.Value.String()
			case "coap-port":
				if p, err := strconv.ParseUint(f.Value.String(), 10, 16); err == nil {
					c.CoAPPort = uint16(p)
				}
			case "coap-uri":
				c.CoAPURI = f.Value.String()
			case "start-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.StartTimeout = d
				}
			case "metrics-interval":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.MetricsInterval = d
				}
			}
		})
		return nil
	}
}
