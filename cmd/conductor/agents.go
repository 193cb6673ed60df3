package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAgentsCmd(flags *rootFlags) *cobra.Command {
	var (
		agentsFile string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Validate and print the agents of a seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if agentsFile == "" && cfg.AgentsFile == "" {
				return fmt.Errorf("no agents file: pass --agents or set agents_file")
			}
			// printing needs no credentials
			cfg.Provider.Mock = true

			a, err := newApp(cmd.Context(), cfg, appOptions{LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()

			if err := a.seed(agentsFile); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a.seeded)
			}
			for _, ag := range a.seeded {
				assistantColor.Fprintf(out, "%s", ag.Name)
				fmt.Fprintf(out, " (id %s, model %s)\n", ag.ID, ag.Model)
				if ag.Instructions != "" {
					faintColor.Fprintf(out, "  %s\n", ag.Instructions)
				}
				if len(ag.Tools) > 0 {
					fmt.Fprintf(out, "  tools: %s\n", strings.Join(ag.Tools, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentsFile, "agents", "", "YAML file of agents (overrides agents_file)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the agents as JSON")

	return cmd
}
