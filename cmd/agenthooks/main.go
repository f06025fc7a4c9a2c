// Package main provides the agenthooks CLI: the SubagentStart and
// SubagentStop hook handlers plus commands for inspecting what they record.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var projectDirFlag string

var rootCmd = &cobra.Command{
	Use:     "agenthooks",
	Short:   "Correlate Claude Code subagents with the delegate calls that launched them",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDirFlag, "project-dir", "",
		"Project root (env: CLAUDE_PROJECT_DIR, default: hook cwd or working directory)")

	rootCmd.AddCommand(newSubagentStartCmd())
	rootCmd.AddCommand(newSubagentStopCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newContextsCmd())
	rootCmd.AddCommand(newViewCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agenthooks: %v\n", err)
		os.Exit(1)
	}
}
