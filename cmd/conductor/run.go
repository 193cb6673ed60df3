package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentconductor/conductor"
	"github.com/hupe1980/agentconductor/core"
)

type runFlags struct {
	agents       []string
	attach       []string
	agentsFile   string
	input        string
	turns        int
	stopWhenIdle bool
	mock         bool
	jsonOutput   bool
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "Run one conversation and print the transcript",
		Long: `Run one round-robin conversation and print the transcript.

Agents come from --agents (a YAML seed file) followed by every --agent flag,
in order. The speaking order is the registration order.

Examples:
  conductor run --mock --agent Writer=gpt-4o-mini --agent Critic=claude-3-5-haiku-latest "Write a haiku"
  conductor run --agents agents.yaml --turns 4 --input "What is 2+3?"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rf.input == "" {
				rf.input = strings.Join(args, " ")
			}
			if strings.TrimSpace(rf.input) == "" {
				return errors.New("an input is required (positional or --input)")
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if rf.mock {
				cfg.Provider.Mock = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()

			ids, err := registerRunAgents(a, rf)
			if err != nil {
				return err
			}

			res, err := a.conductor.Run(ctx, conductor.Request{
				AgentIDs:     ids,
				Conversation: core.NewConversation(rf.input),
				MaxTurns:     rf.turns,
				StopWhenIdle: rf.stopWhenIdle || cfg.Conductor.StopWhenIdle,
			})
			if err != nil {
				return err
			}

			if rf.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printTranscript(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&rf.agents, "agent", nil, "Agent as Name=model, repeatable")
	cmd.Flags().StringArrayVar(&rf.attach, "tool", nil, "Attach a tool as AgentName=tool, repeatable")
	cmd.Flags().StringVar(&rf.agentsFile, "agents", "", "YAML file of agents (overrides agents_file)")
	cmd.Flags().StringVarP(&rf.input, "input", "i", "", "User input that opens the conversation")
	cmd.Flags().IntVarP(&rf.turns, "turns", "n", 0, "Maximum turns (default conductor.default_max_turns)")
	cmd.Flags().BoolVar(&rf.stopWhenIdle, "stop-when-idle", false, "Stop after a turn without tool calls")
	cmd.Flags().BoolVar(&rf.mock, "mock", false, "Use the canned mock provider")
	cmd.Flags().BoolVar(&rf.jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

// registerRunAgents seeds and registers the agents named by the flags and
// returns their ids in speaking order.
func registerRunAgents(a *app, rf *runFlags) ([]core.AgentID, error) {
	if err := a.seed(rf.agentsFile); err != nil {
		return nil, err
	}

	byName := make(map[string]core.AgentID)
	ids := make([]core.AgentID, 0, len(a.seeded)+len(rf.agents))
	for _, ag := range a.seeded {
		byName[ag.Name] = ag.ID
		ids = append(ids, ag.ID)
	}

	for _, flag := range rf.agents {
		name, modelID, ok := strings.Cut(flag, "=")
		if !ok || name == "" || modelID == "" {
			return nil, fmt.Errorf("invalid --agent %q, want Name=model", flag)
		}
		ag, err := a.conductor.CreateAgent(name, modelID, "")
		if err != nil {
			return nil, err
		}
		byName[ag.Name] = ag.ID
		ids = append(ids, ag.ID)
	}

	for _, flag := range rf.attach {
		name, toolName, ok := strings.Cut(flag, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --tool %q, want AgentName=tool", flag)
		}
		id, found := byName[name]
		if !found {
			return nil, fmt.Errorf("--tool %q: no agent named %q", flag, name)
		}
		if _, err := a.conductor.AddTool(id, toolName); err != nil {
			return nil, err
		}
	}

	if len(ids) == 0 {
		return nil, errors.New("no agents: pass --agent or --agents")
	}
	return ids, nil
}

var (
	userColor      = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgGreen, color.Bold)
	toolColor      = color.New(color.FgYellow)
	systemColor    = color.New(color.FgRed)
	faintColor     = color.New(color.Faint)
)

func printTranscript(w io.Writer, res *conductor.Result) {
	for _, m := range res.Messages() {
		switch m.Role {
		case core.RoleUser:
			userColor.Fprint(w, "user")
			fmt.Fprintf(w, ": %s\n", m.Content)
		case core.RoleAssistant:
			assistantColor.Fprint(w, m.Name)
			fmt.Fprintf(w, ": %s\n", m.Content)
			for _, call := range m.ToolCalls {
				faintColor.Fprintf(w, "  -> %s(%s) [%s]\n", call.Name, call.Arguments, call.ID)
			}
		case core.RoleTool:
			toolColor.Fprintf(w, "  <- %s", m.Name)
			fmt.Fprintf(w, ": %s\n", m.Content)
		default:
			systemColor.Fprintf(w, "%s: %s\n", m.Role, m.Content)
		}
	}
	faintColor.Fprintf(w, "\n%s after %d turns (%s, id %s)\n",
		res.Status, res.TurnsTaken, res.Duration().Round(time.Millisecond), res.RunID)
}
