// Package relaycmder is the root relay command.
package relaycmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/relay/cmd/relay/chat"
	configcmder "github.com/papercomputeco/relay/cmd/relay/config"
	servecmder "github.com/papercomputeco/relay/cmd/relay/serve"
	versioncmder "github.com/papercomputeco/relay/cmd/version"
	"github.com/papercomputeco/relay/pkg/cliui"
)

const relayLongDesc string = `Relay forwards chat prompts to the Gemini API and relays the reply.

Run the server:
  relay serve              Run the relay server

Talk to a running server:
  relay chat               Send prompts and print replies

Manage settings:
  relay config             Get, set and list persistent configuration`

const relayShortDesc string = "Relay - Gemini prompt relay"

func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         relayShortDesc,
		Long:          relayLongDesc,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				cliui.DisableColor()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .relay/ config directory")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
