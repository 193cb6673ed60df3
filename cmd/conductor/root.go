package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "conductor",
		Short: "Round-robin multi-agent conductor",
		Long: `conductor runs conversations in which registered agents take turns
answering a shared transcript, invoking whitelisted tools along the way.

Configuration is read from --config (or ./conductor.yaml), then from
CONDUCTOR_* environment variables. OPENAI_API_KEY, ANTHROPIC_API_KEY and
GEMINI_API_KEY enable the matching providers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newAgentsCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
