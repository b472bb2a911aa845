package main

import (
	"github.com/docchat/client/internal/app"
	"github.com/spf13/cobra"
)

// serveCmd runs the HTTP surface
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation over HTTP and WebSocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(cmd.Context(), Version)
	},
}
