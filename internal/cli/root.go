// Package cli implements the weft command line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/weft-labs/weft/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"                 _____ _\n" +
		" __      _____ / ____| |_\n" +
		" \\ \\ /\\ / / _ \\ |_  | __|\n" +
		"  \\ V  V /  __/  _| | |_\n" +
		"   \\_/\\_/ \\___|_|    \\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft - event-sourced workspace storage engine",
	Long:  color.CyanString(logo) + "\nAppend-only event log with a rebuildable query cache for workspaces,\nsessions, states, traces and conversations.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(workspacesCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
