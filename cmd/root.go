package cmd

import (
	"fmt"
	"os"

	"fermata/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fermata",
	Short: "Fermata is a library service for musical compositions.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
