package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// ControlPort is the mux channel carrying network and SIM management
	// (e.g. "/dev/gsmtty1")
	ControlPort string `yaml:"control_port"`
	// DataPorts are the mux channels able to carry a data session, one per
	// context id
	DataPorts []string `yaml:"data_ports"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// SimPIN is the SIM card PIN code
	SimPIN string `yaml:"sim_pin"`
	// ATTimeout bounds commands without a configured timeout
	ATTimeout time.Duration `yaml:"at_timeout"`
	// Repository is the persisted settings store, a YAML file or an SQLite
	// database (".db", ".sqlite")
	Repository string `yaml:"repository"`
	// NATSURL enables publishing events to NATS when set
	NATSURL string `yaml:"nats_url"`
	// NATSPrefix is the subject prefix of published events
	NATSPrefix string `yaml:"nats_prefix"`
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

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.ControlPort == "" {
		return errors.New("config: control port is required")
	}
	if len(c.DataPorts) == 0 {
		return errors.New("config: at least one data port is required")
	}
	for _, p := range c.DataPorts {
		if p == c.ControlPort {
			return fmt.Errorf("config: %s is both control and data port", p)
		}
	}
	return nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.ControlPort = "/dev/gsmtty1"
		c.DataPorts = []string{"/dev/gsmtty2"}
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.ATTimeout = 5 * time.Second
		c.Repository = "/etc/modemctl/repository.yaml"
		c.NATSPrefix = "modemctl"
		return nil
	}
}

// WithFile loads configuration from a YAML file. Keys missing from the
// file keep their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if port := os.Getenv("CONTROL_PORT"); port != "" {
			c.ControlPort = port
		}

		if ports := os.Getenv("DATA_PORTS"); ports != "" {
			c.DataPorts = splitList(ports)
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if simPIN := os.Getenv("SIM_PIN"); simPIN != "" {
			c.SimPIN = simPIN
		}

		if timeout := os.Getenv("AT_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.ATTimeout = d
			}
		}

		if repo := os.Getenv("REPOSITORY"); repo != "" {
			c.Repository = repo
		}

		if url := os.Getenv("NATS_URL"); url != "" {
			c.NATSURL = url
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
			case "control-port":
				c.ControlPort = f.Value.String()
			case "data-ports":
				c.DataPorts = splitList(f.Value.String())
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "sim-pin":
				c.SimPIN = f.Value.String()
			case "at-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.ATTimeout = d
				}
			case "repository":
				c.Repository = f.Value.String()
			case "nats-url":
				c.NATSURL = f.Value.String()
			}
		})
		return nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
