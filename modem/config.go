package modem

import (
	"log/slog"
	"time"
)

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

// Config holds the settings of a Modem. It is built with ConfigBuilder.
type Config struct {
	dialer    Dialer
	resetLine ResetLine
	logger    *slog.Logger

	// atTimeout bounds plain query and configuration commands
	atTimeout time.Duration
	// networkTimeout bounds commands that wait on the radio (CFUN, CGATT, COPS)
	networkTimeout time.Duration
	// coapTimeout bounds a CoAP verb including the server response
	coapTimeout time.Duration
	// rebootTimeout bounds AT+NRB until READY
	rebootTimeout time.Duration
	// initTimeout bounds the initialisation sequence run by New
	initTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.atTimeout == 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.networkTimeout == 0 {
		c.networkTimeout = time.Minute
	}
	if c.coapTimeout == 0 {
		c.coapTimeout = 30 * time.Second
	}
	if c.rebootTimeout == 0 {
		c.rebootTimeout = 30 * time.Second
	}
	if c.initTimeout == 0 {
		c.initTimeout = 10 * time.Second
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithResetLine enables hardware resets through the given line.
func (b *ConfigBuilder) WithResetLine(r ResetLine) *ConfigBuilder {
	b.config.resetLine = r
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

func (b *ConfigBuilder) WithNetworkTimeout(d time.Duration) *ConfigBuilder {
	b.config.networkTimeout = d
	return b
}

func (b *ConfigBuilder) WithCoAPTimeout(d time.Duration) *ConfigBuilder {
	b.config.coapTimeout = d
	return b
}

func (b *ConfigBuilder) WithRebootTimeout(d time.Duration) *ConfigBuilder {
	b.config.rebootTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
