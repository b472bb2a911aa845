package main

import (
	"fmt"
	"strings"

	"github.com/docchat/client/internal/app"
	"github.com/spf13/cobra"
)

// askCmd sends one question and prints the answer
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question about the uploaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ex, err := a.Store.SendQuestion(strings.Join(args, " "))
	if err != nil {
		return err
	}

	select {
	case <-ex.Done():
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}

	reply := ex.Reply()
	fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]: %s\n", reply.DisplayName, reply.Time, reply.Body)
	return ex.Err()
}
