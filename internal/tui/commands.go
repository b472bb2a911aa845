package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docchat/client/internal/upload"
	"go.uber.org/zap"
)

const helpText = "/upload <path>  select a PDF    /submit  upload it    /cancel  stop the upload\n" +
	"/close  hide the upload panel    /quit  exit"

func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	m.notice = ""

	switch name {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/help":
		m.notice = helpText

	case "/upload":
		m.conv.OpenUploadSurface()
		if arg == "" {
			break
		}
		f, err := upload.OpenLocal(arg)
		if err != nil {
			m.notice = err.Error()
			break
		}
		if _, err := m.conv.SelectFile(f); err != nil {
			var rejected *upload.RejectionError
			if !errors.As(err, &rejected) {
				m.notice = err.Error()
			}
			m.logger.Debug("file not selected", zap.String("path", arg), zap.Error(err))
		}

	case "/submit":
		m.conv.OpenUploadSurface()
		if _, err := m.conv.SubmitUpload(); err != nil && !errors.Is(err, upload.ErrMissingFile) {
			m.notice = err.Error()
		}

	case "/cancel":
		if !m.conv.CancelUpload() {
			m.notice = "No upload in progress."
		}

	case "/close":
		m.conv.CloseUploadSurface()

	default:
		m.notice = "Unknown command " + name + ". Try /help."
	}
	return m, nil
}
