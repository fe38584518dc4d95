package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/relay/pkg/dotdir"
)

// apiKeyEnvVars are the environment variables consulted for the upstream
// credential, in order.
var apiKeyEnvVars = []string{"RELAY_UPSTREAM_API_KEY", "GEMINI_API_KEY"}

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RELAY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (RELAY_SERVER_LISTEN, RELAY_UPSTREAM_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
//
// The upstream credential is bound only to the environment.
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	loc, err := dotdir.Resolve(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if loc.Found() {
		v.AddConfigPath(loc.Dir)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv(append([]string{"upstream.api_key"}, apiKeyEnvVars...)...); err != nil {
		return nil, fmt.Errorf("binding credential env: %w", err)
	}

	return v, nil
}

// FromViper materializes a Config from the resolved viper precedence chain.
// Call it once at process start and pass the result down.
func FromViper(v *viper.Viper) *Config {
	sse := v.GetBool("upstream.sse")

	cfg := &Config{
		Version: v.GetInt("version"),
		Server: ServerConfig{
			Listen:       v.GetString("server.listen"),
			Mode:         v.GetString("server.mode"),
			StaticDir:    v.GetString("server.static_dir"),
			IndexFile:    v.GetString("server.index_file"),
			AllowOrigins: v.GetString("server.allow_origins"),
		},
		Upstream: UpstreamConfig{
			BaseURL:    v.GetString("upstream.base_url"),
			APIVersion: v.GetString("upstream.api_version"),
			Model:      v.GetString("upstream.model"),
			Timeout:    v.GetString("upstream.timeout"),
			SSE:        &sse,
			Preamble:   v.GetString("upstream.preamble"),
			APIKey:     strings.TrimSpace(v.GetString("upstream.api_key")),
		},
		Relay: RelayConfig{
			ReadBufferSize:  v.GetUint("relay.read_buffer_size"),
			MaxPendingBytes: v.GetUint("relay.max_pending_bytes"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetString("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
		Client: ClientConfig{
			Target: v.GetString("client.target"),
		},
	}

	applyDefaults(cfg)

	return cfg
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("server.index_file", d.Server.IndexFile)
	v.SetDefault("server.allow_origins", d.Server.AllowOrigins)

	// Upstream
	v.SetDefault("upstream.base_url", d.Upstream.BaseURL)
	v.SetDefault("upstream.api_version", d.Upstream.APIVersion)
	v.SetDefault("upstream.model", d.Upstream.Model)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.sse", d.Upstream.SSEEnabled())
	v.SetDefault("upstream.preamble", d.Upstream.Preamble)

	// Relay
	v.SetDefault("relay.read_buffer_size", d.Relay.ReadBufferSize)
	v.SetDefault("relay.max_pending_bytes", d.Relay.MaxPendingBytes)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// Log
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)

	// Client
	v.SetDefault("client.target", d.Client.Target)
}
