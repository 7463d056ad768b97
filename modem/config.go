package modem

import (
	"log/slog"
	"time"
)

// ChannelConfig describes one multiplexed channel.
type ChannelConfig struct {
	ID   ID
	Name string

	Dialer   Dialer
	Switcher ModeSwitcher

	// Silos are consulted in order; the first matching prefix wins.
	Silos []*Silo

	// Data marks channels that may carry a packet data session.
	Data bool
}

type Config struct {
	Channels []ChannelConfig

	SimPIN      string
	ATTimeout   time.Duration
	InitTimeout time.Duration
	// MaxTimeouts is the number of consecutive step timeouts on a channel
	// after which NotifyModemUnresponsive is raised.
	MaxTimeouts int
	// DialRetries bounds transport open attempts per channel.
	DialRetries int

	Logger   *slog.Logger
	Metrics  *Metrics
	OnNotify NotifyFunc
	Timeouts TimeoutSource

	SIMPoll PollConfig
}

// PollConfig defines configuration for polling operations like waiting for SIM readiness.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

func (c *Config) setDefaults() {
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.MaxTimeouts == 0 {
		c.MaxTimeouts = 3
	}
	if c.DialRetries == 0 {
		c.DialRetries = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	seen := make(map[ID]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Dialer == nil {
			return ErrNoDialer
		}
		if seen[ch.ID] {
			return ErrDuplicateChannel
		}
		seen[ch.ID] = true
	}
	return nil
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	cfg Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer adds a command-only channel with the next free id.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	return b.WithChannel(ChannelConfig{ID: ID(len(b.cfg.Channels)), Dialer: d})
}

func (b *ConfigBuilder) WithChannel(ch ChannelConfig) *ConfigBuilder {
	b.cfg.Channels = append(b.cfg.Channels, ch)
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.cfg.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithMaxTimeouts(n int) *ConfigBuilder {
	b.cfg.MaxTimeouts = n
	return b
}

func (b *ConfigBuilder) WithDialRetries(n int) *ConfigBuilder {
	b.cfg.DialRetries = n
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.cfg.Logger = l
	return b
}

func (b *ConfigBuilder) WithMetrics(m *Metrics) *ConfigBuilder {
	b.cfg.Metrics = m
	return b
}

func (b *ConfigBuilder) WithNotify(fn NotifyFunc) *ConfigBuilder {
	b.cfg.OnNotify = fn
	return b
}

func (b *ConfigBuilder) WithTimeouts(src TimeoutSource) *ConfigBuilder {
	b.cfg.Timeouts = src
	return b
}

func (b *ConfigBuilder) WithSIMPoll(p PollConfig) *ConfigBuilder {
	b.cfg.SIMPoll = p
	return b
}

// Build validates the configuration and applies defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	cfg := b.cfg
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	return cfg, nil
}
