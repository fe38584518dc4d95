package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --listen
// on both "relay serve" and the standalone "relayd").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "upstream.base_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen         = "listen"
	FlagMode           = "mode"
	FlagUpstream       = "upstream"
	FlagModel          = "model"
	FlagAPIVersion     = "api-version"
	FlagTimeout        = "timeout"
	FlagStaticDir      = "static-dir"
	FlagAllowOrigins   = "allow-origins"
	FlagReadBufferSize = "read-buffer-size"
	FlagMaxPending     = "max-pending-bytes"
	FlagEventsProvider = "events-provider"
	FlagEventsBrokers  = "events-brokers"
	FlagEventsTopic    = "events-topic"
	FlagLogLevel       = "log-level"
	FlagLogFormat      = "log-format"
	FlagLogFile        = "log-file"
	FlagClientTarget   = "target"
)

// ServeFlags registers every flag understood by the serve commands.
var ServeFlags = FlagSet{
	FlagListen:         {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the relay server to listen on"},
	FlagMode:           {Name: "mode", Shorthand: "m", ViperKey: "server.mode", Description: "Response mode (stream, single-shot)"},
	FlagUpstream:       {Name: "upstream", Shorthand: "u", ViperKey: "upstream.base_url", Description: "Generative language API base URL"},
	FlagModel:          {Name: "model", ViperKey: "upstream.model", Description: "Upstream model name"},
	FlagAPIVersion:     {Name: "api-version", ViperKey: "upstream.api_version", Description: "Upstream API version path segment"},
	FlagTimeout:        {Name: "timeout", ViperKey: "upstream.timeout", Description: "Upstream request timeout (e.g. 90s, 5m)"},
	FlagStaticDir:      {Name: "static-dir", ViperKey: "server.static_dir", Description: "Directory of static files served at / (disabled when empty)"},
	FlagAllowOrigins:   {Name: "allow-origins", ViperKey: "server.allow_origins", Description: "Comma-separated CORS allowed origins"},
	FlagReadBufferSize: {Name: "read-buffer-size", ViperKey: "relay.read_buffer_size", Description: "Bytes read from upstream per relay pass"},
	FlagMaxPending:     {Name: "max-pending-bytes", ViperKey: "relay.max_pending_bytes", Description: "Largest split record the relay will reassemble"},
	FlagEventsProvider: {Name: "events-provider", ViperKey: "events.provider", Description: "Telemetry event provider (none, kafka)"},
	FlagEventsBrokers:  {Name: "events-brokers", ViperKey: "events.brokers", Description: "Comma-separated Kafka broker addresses"},
	FlagEventsTopic:    {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for chat events"},
	FlagLogLevel:       {Name: "log-level", ViperKey: "log.level", Description: "Log level (debug, info, warn, error)"},
	FlagLogFormat:      {Name: "log-format", ViperKey: "log.format", Description: "Log format on stdout (pretty, json, text)"},
	FlagLogFile:        {Name: "log-file", ViperKey: "log.file", Description: "Also write JSON logs to this file"},
}

// ServeFlagKeys lists the ServeFlags registry keys in display order.
var ServeFlagKeys = []string{
	FlagListen,
	FlagMode,
	FlagUpstream,
	FlagModel,
	FlagAPIVersion,
	FlagTimeout,
	FlagStaticDir,
	FlagAllowOrigins,
	FlagReadBufferSize,
	FlagMaxPending,
	FlagEventsProvider,
	FlagEventsBrokers,
	FlagEventsTopic,
	FlagLogLevel,
	FlagLogFormat,
	FlagLogFile,
}

// ClientFlags registers the flags of commands that talk to a running server.
var ClientFlags = FlagSet{
	FlagClientTarget: {Name: "target", Shorthand: "t", ViperKey: "client.target", Description: "Relay server URL"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
