package tui

import (
	"fmt"
	"strings"

	"github.com/docchat/client/internal/models"
)

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render("docchat"))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")

	if m.snap.UploadSurfaceOpen {
		sb.WriteString(m.renderUploadPanel())
		sb.WriteString("\n")
	}

	switch {
	case m.snap.Busy:
		sb.WriteString(m.spinner.View() + " " + m.styles.Hint.Render("Waiting for reply..."))
	case m.notice != "":
		sb.WriteString(m.styles.Hint.Render(m.notice))
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.Input.Render(m.input.View()))
	return sb.String()
}

func (m Model) renderHistory() string {
	var sb strings.Builder
	for _, msg := range m.snap.Messages {
		stamp := m.styles.Timestamp.Render(msg.Time)
		if msg.IsFrom(m.snap.User.ID) {
			sb.WriteString(m.styles.User.Render(msg.DisplayName) + " " + stamp + "\n")
			sb.WriteString(m.styles.Body.Render(msg.Body))
			sb.WriteString("\n")
			continue
		}

		sb.WriteString(m.styles.Responder.Render(msg.DisplayName) + " " + stamp + "\n")
		if msg.Status == models.MessageStatusError {
			sb.WriteString(m.styles.Failed.Render(msg.Body))
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(m.safeRenderMarkdown(msg.Body))
		sb.WriteString("\n")
	}
	return sb.String()
}

// safeRenderMarkdown falls back to plain text when glamour fails.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = m.styles.Body.Render(content)
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return m.styles.Body.Render(content)
}

func (m Model) renderUploadPanel() string {
	up := m.snap.Upload
	var lines []string

	if up.SelectedFile != nil {
		lines = append(lines, fmt.Sprintf("File: %s (%d bytes)", up.SelectedFile.Name, up.SelectedFile.Size))
	} else {
		lines = append(lines, m.styles.Hint.Render("No file selected. Use /upload <path>."))
	}

	if up.Progress != nil {
		lines = append(lines, m.progress.ViewAs(float64(*up.Progress)/100))
	}

	switch {
	case up.ValidationError != "":
		lines = append(lines, m.styles.Error.Render(up.ValidationError))
	case up.Status == models.UploadStatusComplete:
		lines = append(lines, m.styles.Success.Render("Upload complete."))
	case up.InFlight:
		lines = append(lines, m.styles.Hint.Render("Uploading... /cancel to stop"))
	}

	width := m.width - 2
	if width < 20 {
		width = 20
	}
	return m.styles.Panel.Width(width).Render(strings.Join(lines, "\n"))
}
