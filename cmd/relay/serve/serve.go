// Package servecmder provides the serve command that runs the relay server.
package servecmder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/eventstream/kafka"
	"github.com/papercomputeco/relay/pkg/eventstream/nop"
	"github.com/papercomputeco/relay/pkg/gemini"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/relay"
	"github.com/papercomputeco/relay/proxy"
)

type serveCommander struct {
	cfg   *config.Config
	debug bool

	// Flag targets. Values are read back through viper so that
	// flag > env > config file > default precedence holds.
	flagStrings map[string]*string
	flagUints   map[string]*uint

	logger *slog.Logger
}

const serveLongDesc string = `Run the relay server.

The server accepts chat prompts on /api/chat (aliases /api/gemini and
/api/analyze), forwards each one to the Gemini API exactly once and relays
the reply back. In stream mode reply text is written as plain text as it
arrives; in single-shot mode the whole reply is returned as {"reply": ...}.

The API key is read from GEMINI_API_KEY (or RELAY_UPSTREAM_API_KEY) and is
never stored in config.toml.

Examples:
  relay serve
  relay serve --mode single-shot --listen :3000
  relay serve --static-dir ./web --events-provider kafka --events-brokers localhost:9092`

const serveShortDesc string = "Run the relay server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{
		flagStrings: map[string]*string{},
		flagUints:   map[string]*uint{},
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmder.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	for _, key := range config.ServeFlagKeys {
		switch key {
		case config.FlagReadBufferSize, config.FlagMaxPending:
			target := new(uint)
			cmder.flagUints[key] = target
			config.AddUintFlag(cmd, config.ServeFlags, key, target)
		default:
			target := new(string)
			cmder.flagStrings[key] = target
			config.AddStringFlag(cmd, config.ServeFlags, key, target)
		}
	}

	return cmd
}

// loadConfig resolves the effective configuration for cmd from defaults,
// config.toml, RELAY_* environment variables and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configDir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return nil, fmt.Errorf("could not get config-dir flag: %w", err)
	}

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.ServeFlags, config.ServeFlagKeys)

	cfg := config.FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *serveCommander) run() error {
	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = log

	if c.cfg.Upstream.APIKey == "" {
		c.logger.Warn("GEMINI_API_KEY is not set, chat requests will fail until it is")
	}

	issuer := gemini.NewClient(newGeminiConfig(c.cfg), c.logger)

	publisher, err := newPublisher(c.cfg, c.logger)
	if err != nil {
		return err
	}

	p, err := proxy.New(newProxyConfig(c.cfg), issuer, publisher, c.logger)
	if err != nil {
		_ = publisher.Close()
		return fmt.Errorf("creating relay server: %w", err)
	}
	defer p.Close()

	errChan := make(chan error, 1)
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("relay server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// newLogger builds the stdout logger from the log settings and, when a log
// file is configured, fans records out to a JSON file as well. --debug
// overrides the configured level.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	// Both were checked by Validate.
	level, _ := logger.ParseLevel(c.cfg.Log.Level)
	format, _ := logger.ParseFormat(c.cfg.Log.Format)

	stdout := logger.New(
		logger.WithLevel(level),
		logger.WithDebug(c.debug),
		logger.WithFormat(format),
	)

	if c.cfg.Log.File == "" {
		return stdout, func() {}, nil
	}

	f, err := os.OpenFile(c.cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithLevel(level),
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatJSON),
		logger.WithWriter(f),
	)

	return logger.Multi(stdout, file), func() { _ = f.Close() }, nil
}

func newGeminiConfig(cfg *config.Config) gemini.Config {
	return gemini.Config{
		APIKey:     cfg.Upstream.APIKey,
		BaseURL:    cfg.Upstream.BaseURL,
		APIVersion: cfg.Upstream.APIVersion,
		Model:      cfg.Upstream.Model,
		Timeout:    cfg.UpstreamTimeout(),
		SSE:        cfg.Upstream.SSEEnabled(),
		Preamble:   cfg.Upstream.Preamble,
	}
}

func newProxyConfig(cfg *config.Config) proxy.Config {
	return proxy.Config{
		ListenAddr:   cfg.Server.Listen,
		Mode:         cfg.Server.Mode,
		StaticDir:    cfg.Server.StaticDir,
		IndexFile:    cfg.Server.IndexFile,
		AllowOrigins: cfg.Server.AllowOrigins,
		Model:        cfg.Upstream.Model,
		Relay: relay.Config{
			ReadBufferSize:  int(cfg.Relay.ReadBufferSize),
			MaxPendingBytes: int(cfg.Relay.MaxPendingBytes),
		},
	}
}

func newPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "", config.EventsProviderNone:
		return nop.NewPublisher(), nil

	case config.EventsProviderKafka:
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.BrokerList(),
			Topic:   cfg.Events.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}

		log.Info("publishing chat events to kafka",
			"brokers", cfg.Events.Brokers,
			"topic", cfg.Events.Topic,
		)
		return pub, nil

	default:
		return nil, errors.New("unknown events provider: " + cfg.Events.Provider)
	}
}
