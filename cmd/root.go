// Package cmd implements the donna command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "donna",
	Short: "Donna - WhatsApp personal assistant",
	Long: `Donna bridges WhatsApp, a hosted LLM, and a personal knowledge base.

It receives WhatsApp events from a WAHA gateway webhook, answers with the
configured model, and keeps everything it learns searchable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
