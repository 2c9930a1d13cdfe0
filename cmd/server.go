package cmd

import (
	"fermata/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the fermata server",
	Long:  `Start the HTTP server for the composition moderation queue and the asset upload pipeline.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
