package proxy

import "github.com/papercomputeco/relay/pkg/relay"

const (
	// ModeStream streams reply text to the caller as it arrives.
	ModeStream = "stream"

	// ModeSingleShot returns the whole reply as {"reply": ...}.
	ModeSingleShot = "single-shot"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Mode selects how chat routes reply: ModeStream or ModeSingleShot.
	Mode string

	// StaticDir is an optional directory served at /. Disabled when empty.
	StaticDir string

	// IndexFile is served for / when StaticDir is set.
	IndexFile string

	// AllowOrigins is the comma-separated CORS origin list.
	AllowOrigins string

	// Model is reported in telemetry events.
	Model string

	// Relay tunes the stream relay engine.
	Relay relay.Config
}
