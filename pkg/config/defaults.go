package config

const (
	// ModeStream relays upstream text to the caller as it arrives.
	ModeStream = "stream"

	// ModeSingleShot waits for the full upstream reply and returns it as JSON.
	ModeSingleShot = "single-shot"

	// EventsProviderNone disables event publishing.
	EventsProviderNone = "none"

	// EventsProviderKafka publishes events to a Kafka topic.
	EventsProviderKafka = "kafka"
)

const (
	defaultListen       = ":8080"
	defaultMode         = ModeStream
	defaultIndexFile    = "index.html"
	defaultAllowOrigins = "*"

	defaultUpstreamBaseURL    = "https://generativelanguage.googleapis.com"
	defaultUpstreamAPIVersion = "v1beta"
	defaultUpstreamModel      = "gemini-2.5-flash"
	defaultUpstreamTimeout    = "5m"

	defaultReadBufferSize  = 4096
	defaultMaxPendingBytes = 1 << 20

	// MaxReadBufferSize caps relay.read_buffer_size.
	MaxReadBufferSize = 1 << 20

	defaultEventsProvider = EventsProviderNone
	defaultEventsTopic    = "relay.chat.completed"

	defaultLogLevel  = "info"
	defaultLogFormat = "pretty"

	defaultClientTarget = "http://localhost:8080"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	sse := true
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen:       defaultListen,
			Mode:         defaultMode,
			IndexFile:    defaultIndexFile,
			AllowOrigins: defaultAllowOrigins,
		},
		Upstream: UpstreamConfig{
			BaseURL:    defaultUpstreamBaseURL,
			APIVersion: defaultUpstreamAPIVersion,
			Model:      defaultUpstreamModel,
			Timeout:    defaultUpstreamTimeout,
			SSE:        &sse,
		},
		Relay: RelayConfig{
			ReadBufferSize:  defaultReadBufferSize,
			MaxPendingBytes: defaultMaxPendingBytes,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Client: ClientConfig{
			Target: defaultClientTarget,
		},
	}
}

// IsValidMode reports whether mode names a supported response mode.
func IsValidMode(mode string) bool {
	return mode == ModeStream || mode == ModeSingleShot
}

// IsValidEventsProvider reports whether name is a supported events provider.
func IsValidEventsProvider(name string) bool {
	return name == EventsProviderNone || name == EventsProviderKafka
}
