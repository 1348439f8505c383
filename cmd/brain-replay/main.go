// Package main provides the CLI entry point for brain-replay.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elliottower/brain-inspired-replay/cmd/brain-replay/commands"
)

var (
	version = "1.0.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "brain-replay",
	Short: "Brain Replay - continual-learning training scheduler",
	Long: `Brain Replay trains a classifier over a sequence of tasks without
catastrophic forgetting.

It provides:
  - Generative and current-batch replay with curated sample selection
  - Task-, domain-, and class-incremental scenarios
  - EWC and synaptic-intelligence parameter regularization
  - SQLite persistence for run checkpoints and metrics`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.InspectCmd)
}
