package config

import (
	"fmt"
	"strconv"

	"github.com/papercomputeco/relay/pkg/logger"
)

// Config represents the persistent relay configuration stored as config.toml
// in the .relay/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version  int            `toml:"version"`
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Relay    RelayConfig    `toml:"relay"`
	Events   EventsConfig   `toml:"events"`
	Log      LogConfig      `toml:"log"`
	Client   ClientConfig   `toml:"client"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen       string `toml:"listen,omitempty"`
	Mode         string `toml:"mode,omitempty"`
	StaticDir    string `toml:"static_dir,omitempty"`
	IndexFile    string `toml:"index_file,omitempty"`
	AllowOrigins string `toml:"allow_origins,omitempty"`
}

// UpstreamConfig holds settings for the generative language API.
type UpstreamConfig struct {
	BaseURL    string `toml:"base_url,omitempty"`
	APIVersion string `toml:"api_version,omitempty"`
	Model      string `toml:"model,omitempty"`
	Timeout    string `toml:"timeout,omitempty"`
	SSE        *bool  `toml:"sse,omitempty"`
	Preamble   string `toml:"preamble,omitempty"`

	// APIKey is only ever sourced from the environment.
	APIKey string `toml:"-"`
}

// SSEEnabled reports whether streaming calls request SSE framing.
// An unset value means enabled.
func (u UpstreamConfig) SSEEnabled() bool {
	return u.SSE == nil || *u.SSE
}

// RelayConfig holds stream relay tuning.
type RelayConfig struct {
	ReadBufferSize  uint `toml:"read_buffer_size,omitempty"`
	MaxPendingBytes uint `toml:"max_pending_bytes,omitempty"`
}

// EventsConfig holds telemetry event stream settings.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// LogConfig holds logging settings for the server.
type LogConfig struct {
	Level  string `toml:"level,omitempty"`
	Format string `toml:"format,omitempty"`
	File   string `toml:"file,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running relay
// server (e.g. relay chat). Values are full URLs (scheme + host + port).
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"server.mode": {
		get: func(c *Config) string { return c.Server.Mode },
		set: func(c *Config, v string) error {
			if !IsValidMode(v) {
				return fmt.Errorf("invalid value for server.mode: %q (expected %s or %s)", v, ModeStream, ModeSingleShot)
			}
			c.Server.Mode = v
			return nil
		},
	},
	"server.static_dir": {
		get: func(c *Config) string { return c.Server.StaticDir },
		set: func(c *Config, v string) error { c.Server.StaticDir = v; return nil },
	},
	"server.index_file": {
		get: func(c *Config) string { return c.Server.IndexFile },
		set: func(c *Config, v string) error { c.Server.IndexFile = v; return nil },
	},
	"server.allow_origins": {
		get: func(c *Config) string { return c.Server.AllowOrigins },
		set: func(c *Config, v string) error { c.Server.AllowOrigins = v; return nil },
	},
	"upstream.base_url": {
		get: func(c *Config) string { return c.Upstream.BaseURL },
		set: func(c *Config, v string) error { c.Upstream.BaseURL = v; return nil },
	},
	"upstream.api_version": {
		get: func(c *Config) string { return c.Upstream.APIVersion },
		set: func(c *Config, v string) error { c.Upstream.APIVersion = v; return nil },
	},
	"upstream.model": {
		get: func(c *Config) string { return c.Upstream.Model },
		set: func(c *Config, v string) error { c.Upstream.Model = v; return nil },
	},
	"upstream.timeout": {
		get: func(c *Config) string { return c.Upstream.Timeout },
		set: func(c *Config, v string) error {
			if _, err := parseTimeout(v); err != nil {
				return err
			}
			c.Upstream.Timeout = v
			return nil
		},
	},
	"upstream.sse": {
		get: func(c *Config) string { return strconv.FormatBool(c.Upstream.SSEEnabled()) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for upstream.sse: %w", err)
			}
			c.Upstream.SSE = &b
			return nil
		},
	},
	"upstream.preamble": {
		get: func(c *Config) string { return c.Upstream.Preamble },
		set: func(c *Config, v string) error { c.Upstream.Preamble = v; return nil },
	},
	"relay.read_buffer_size": {
		get: func(c *Config) string { return formatUint(c.Relay.ReadBufferSize) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for relay.read_buffer_size: %w", err)
			}
			c.Relay.ReadBufferSize = uint(n)
			return nil
		},
	},
	"relay.max_pending_bytes": {
		get: func(c *Config) string { return formatUint(c.Relay.MaxPendingBytes) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for relay.max_pending_bytes: %w", err)
			}
			c.Relay.MaxPendingBytes = uint(n)
			return nil
		},
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			if !IsValidEventsProvider(v) {
				return fmt.Errorf("invalid value for events.provider: %q (expected %s or %s)", v, EventsProviderNone, EventsProviderKafka)
			}
			c.Events.Provider = v
			return nil
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"log.level": {
		get: func(c *Config) string { return c.Log.Level },
		set: func(c *Config, v string) error {
			if _, err := logger.ParseLevel(v); err != nil {
				return fmt.Errorf("invalid value for log.level: %w", err)
			}
			c.Log.Level = v
			return nil
		},
	},
	"log.format": {
		get: func(c *Config) string { return c.Log.Format },
		set: func(c *Config, v string) error {
			if _, err := logger.ParseFormat(v); err != nil {
				return fmt.Errorf("invalid value for log.format: %w", err)
			}
			c.Log.Format = v
			return nil
		},
	},
	"log.file": {
		get: func(c *Config) string { return c.Log.File },
		set: func(c *Config, v string) error { c.Log.File = v; return nil },
	},
	"client.target": {
		get: func(c *Config) string { return c.Client.Target },
		set: func(c *Config, v string) error { c.Client.Target = v; return nil },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}
