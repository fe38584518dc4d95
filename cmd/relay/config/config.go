// Package configcmder provides the config command for managing persistent
// relay configuration stored in the .relay/ directory.
package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent relay configuration.

Configuration is stored as config.toml in the .relay/ directory and provides
default values for command flags. RELAY_* environment variables override
the file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure:
  server.listen, server.mode, server.static_dir, server.index_file,
  server.allow_origins,
  upstream.base_url, upstream.api_version, upstream.model, upstream.timeout,
  upstream.sse, upstream.preamble,
  relay.read_buffer_size, relay.max_pending_bytes,
  events.provider, events.brokers, events.topic,
  log.level, log.format, log.file,
  client.target

The API key is never stored here. Set GEMINI_API_KEY in the environment.

Use subcommands to get, set, or list configuration values:
  relay config set <key> <value>    Set a configuration value
  relay config get <key>            Get a configuration value
  relay config list                 List all configuration values

Examples:
  relay config set server.mode single-shot
  relay config set upstream.model gemini-2.5-pro
  relay config get server.listen
  relay config list`

const configShortDesc string = "Manage persistent relay configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// configDirFlag reads the inherited --config-dir flag. The config command can
// also run on its own, without the root's persistent flags, in which case the
// directory is resolved from ./.relay and ~/.relay.
func configDirFlag(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Lookup("config-dir") == nil {
		return "", nil
	}

	dir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return "", fmt.Errorf("could not get config-dir flag: %w", err)
	}
	return dir, nil
}
