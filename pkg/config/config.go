package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/relay/pkg/dotdir"
	"github.com/papercomputeco/relay/pkg/logger"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	loc        dotdir.Location
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	loc, err := dotdir.Resolve(override)
	if err != nil {
		return nil, err
	}

	cfger := &Configer{loc: loc}

	// Without a resolved directory targetPath stays empty: LoadConfig
	// returns defaults and SaveConfig creates ~/.relay/.
	if !loc.Found() {
		return cfger, nil
	}

	path := loc.Join(configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the list of all supported configuration key names
// in the order of the TOML section layout.
func ValidConfigKeys() []string {
	ordered := []string{
		"server.listen",
		"server.mode",
		"server.static_dir",
		"server.index_file",
		"server.allow_origins",
		"upstream.base_url",
		"upstream.api_version",
		"upstream.model",
		"upstream.timeout",
		"upstream.sse",
		"upstream.preamble",
		"relay.read_buffer_size",
		"relay.max_pending_bytes",
		"events.provider",
		"events.brokers",
		"events.topic",
		"log.level",
		"log.format",
		"log.file",
		"client.target",
	}

	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// Source reports how the config directory was found.
func (c *Configer) Source() dotdir.Source {
	return c.loc.Source
}

// LoadConfig loads the configuration from config.toml in the target .relay/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config with sane defaults. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = defaults.Server.Mode
	}
	if cfg.Server.IndexFile == "" {
		cfg.Server.IndexFile = defaults.Server.IndexFile
	}
	if cfg.Server.AllowOrigins == "" {
		cfg.Server.AllowOrigins = defaults.Server.AllowOrigins
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = defaults.Upstream.BaseURL
	}
	if cfg.Upstream.APIVersion == "" {
		cfg.Upstream.APIVersion = defaults.Upstream.APIVersion
	}
	if cfg.Upstream.Model == "" {
		cfg.Upstream.Model = defaults.Upstream.Model
	}
	if cfg.Upstream.Timeout == "" {
		cfg.Upstream.Timeout = defaults.Upstream.Timeout
	}
	if cfg.Upstream.SSE == nil {
		cfg.Upstream.SSE = defaults.Upstream.SSE
	}

	if cfg.Relay.ReadBufferSize == 0 {
		cfg.Relay.ReadBufferSize = defaults.Relay.ReadBufferSize
	}
	if cfg.Relay.MaxPendingBytes == 0 {
		cfg.Relay.MaxPendingBytes = defaults.Relay.MaxPendingBytes
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}

	if cfg.Client.Target == "" {
		cfg.Client.Target = defaults.Client.Target
	}
}

// SaveConfig persists the configuration to config.toml in the target .relay/
// directory, creating ~/.relay/ when no directory was resolved.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		loc, err := dotdir.EnsureHome()
		if err != nil {
			return err
		}
		c.loc = loc
		c.targetPath = loc.Join(configFile)
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that a TOML or viper load cannot express.
func (c *Config) Validate() error {
	if !IsValidMode(c.Server.Mode) {
		return fmt.Errorf("invalid server mode %q (expected %s or %s)", c.Server.Mode, ModeStream, ModeSingleShot)
	}

	if _, err := parseTimeout(c.Upstream.Timeout); err != nil {
		return err
	}

	if !IsValidEventsProvider(c.Events.Provider) {
		return fmt.Errorf("invalid events provider %q (expected %s or %s)", c.Events.Provider, EventsProviderNone, EventsProviderKafka)
	}

	if c.Events.Provider == EventsProviderKafka && len(c.Events.BrokerList()) == 0 {
		return errors.New("events provider kafka requires at least one broker")
	}

	if c.Relay.ReadBufferSize > MaxReadBufferSize {
		return fmt.Errorf("relay.read_buffer_size %d exceeds the maximum of %d", c.Relay.ReadBufferSize, MaxReadBufferSize)
	}

	if c.Relay.MaxPendingBytes != 0 && c.Relay.ReadBufferSize > c.Relay.MaxPendingBytes {
		return fmt.Errorf("relay.read_buffer_size %d exceeds relay.max_pending_bytes %d", c.Relay.ReadBufferSize, c.Relay.MaxPendingBytes)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if _, err := logger.ParseFormat(c.Log.Format); err != nil {
		return err
	}

	return nil
}

// UpstreamTimeout returns the parsed upstream timeout.
func (c *Config) UpstreamTimeout() time.Duration {
	d, err := parseTimeout(c.Upstream.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// BrokerList splits the comma-separated broker list, dropping blanks.
func (e EventsConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseTimeout(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for upstream.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for upstream.timeout: %q is negative", v)
	}
	return d, nil
}
