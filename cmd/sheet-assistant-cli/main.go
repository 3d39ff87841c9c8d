// Package main provides the sheet assistant CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/assistant"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/config"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

const version = "0.1.0"

// app carries the state shared by every subcommand.
type app struct {
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sheet-assistant-cli",
		Short: "Ask questions about spreadsheet rows from the terminal",
		Long: `Sheet assistant CLI answers Thai and English questions from the rows of a
Google Sheet or local CSV file, grounded by an LLM.

Use this tool to:
- Ask single questions or chat interactively
- Run a batch of questions from a file
- Index rows for semantic search
- Inspect settings, history and popular questions

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				a.ui = NewUI(a.stdout, a.stderr, a.outputJSON, a.noColor)
				return nil
			}

			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg

			level := "warn"
			if a.verbose {
				level = cfg.Observability.LogLevel
			}
			a.logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      "console",
				Output:      a.stderr,
				ServiceName: "sheet-assistant-cli",
			})
			a.ui = NewUI(a.stdout, a.stderr, a.outputJSON, a.noColor)
			return nil
		},
	}

	rootCmd.SetIn(a.stdin)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&a.outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newAskCmd(a))
	rootCmd.AddCommand(newChatCmd(a))
	rootCmd.AddCommand(newBatchCmd(a))
	rootCmd.AddCommand(newIndexCmd(a))
	rootCmd.AddCommand(newAnalyzeCmd(a))
	rootCmd.AddCommand(newSettingsCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newPopularCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	return rootCmd
}

// runtime builds the assistant for one command invocation.
func (a *app) runtime(ctx context.Context) (*assistant.Runtime, error) {
	rt, err := assistant.NewRuntime(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("start assistant: %w", err)
	}
	return rt, nil
}

func main() {
	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
