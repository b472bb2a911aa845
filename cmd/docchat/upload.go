package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/docchat/client/internal/app"
	"github.com/docchat/client/internal/conversation"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/upload"
	"github.com/spf13/cobra"
)

// uploadCmd transfers one PDF and reports progress on a single line
var uploadCmd = &cobra.Command{
	Use:   "upload [file.pdf]",
	Short: "Upload a PDF to the ingestion endpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func runUpload(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	a.Store.OpenUploadSurface()
	info, err := a.SelectPath(args[0])
	if err != nil {
		var rejected *upload.RejectionError
		if errors.As(err, &rejected) {
			return errors.New(rejected.Reason)
		}
		return err
	}

	updates, unsubscribe := a.Store.Subscribe()
	defer unsubscribe()

	attempt, err := a.Store.SubmitUpload()
	if err != nil {
		return err
	}

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return conversation.ErrClosed
			}
			printProgress(out, info.Name, snap)
		case <-attempt.Done():
			snap := a.Store.Snapshot()
			printProgress(out, info.Name, snap)
			fmt.Fprintln(out)
			if err := attempt.Err(); err != nil {
				return errors.New(snap.Upload.ValidationError)
			}
			if snap.Upload.LastResult != "" {
				fmt.Fprintln(out, snap.Upload.LastResult)
			}
			return nil
		case <-cmd.Context().Done():
			a.Store.CancelUpload()
			<-attempt.Done()
			fmt.Fprintln(out)
			return errors.New(upload.MessageUploadCancelled)
		}
	}
}

func printProgress(w io.Writer, name string, snap conversation.Snapshot) {
	up := snap.Upload
	pct := 0
	if up.Progress != nil {
		pct = *up.Progress
	} else if up.Status == models.UploadStatusComplete {
		pct = 100
	}
	fmt.Fprintf(w, "\rUploading %s: %3d%% [%-20s] %s", name, pct, bar(pct), up.Status)
}

func bar(pct int) string {
	n := pct / 5
	b := make([]byte, 20)
	for i := range b {
		if i < n {
			b[i] = '='
		} else {
			b[i] = ' '
		}
	}
	return string(b)
}
