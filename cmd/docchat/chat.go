package main

import (
	"fmt"

	"github.com/docchat/client/internal/app"
	"github.com/docchat/client/internal/logging"
	"github.com/docchat/client/internal/tui"
	"github.com/spf13/cobra"
)

var logFile string

// chatCmd starts the interactive terminal session
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Starts a full-screen chat session.

Type a question and press Enter to send it. Commands:
  /upload <path>   select a PDF
  /submit          upload the selected PDF
  /cancel          stop the running upload
  /close           hide the upload panel
  /quit            exit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&logFile, "log-file", "docchat.log", "File receiving logs while the chat view is open")
}

func runChat(cmd *cobra.Command, args []string) error {
	var err error
	logger, err = logging.ToFile(cfg.Logging.Level, logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(cmd.Context(), a.Store, logger)
}
