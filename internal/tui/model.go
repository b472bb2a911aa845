// Package tui is the terminal view over a conversation store.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/docchat/client/internal/conversation"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/orchestrator"
	"github.com/docchat/client/internal/upload"
	"go.uber.org/zap"
)

// Conversation is the part of the store the view drives.
type Conversation interface {
	Subscribe() (<-chan conversation.Snapshot, func())
	UpdateDraft(text string)
	SendDraft() (*orchestrator.Exchange, error)
	OpenUploadSurface()
	CloseUploadSurface()
	SelectFile(f upload.File) (*models.FileInfo, error)
	SubmitUpload() (*upload.Attempt, error)
	CancelUpload() bool
}

// snapshotMsg carries a published store snapshot.
type snapshotMsg conversation.Snapshot

// closedMsg reports that the store stopped publishing.
type closedMsg struct{}

// Model is the bubbletea model of the chat screen.
type Model struct {
	conv        Conversation
	updates     <-chan conversation.Snapshot
	unsubscribe func()
	logger      *zap.Logger

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	progress progress.Model
	renderer *glamour.TermRenderer
	styles   styles

	snap   conversation.Snapshot
	notice string
	width  int
	height int
	ready  bool
}

// New subscribes to conv and returns the initial model. Call Close when the
// program exits.
func New(conv Conversation, logger *zap.Logger) Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Ask about your document... (/help for commands)"
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sp.Style.Foreground(accent)

	updates, unsubscribe := conv.Subscribe()

	return Model{
		conv:        conv,
		updates:     updates,
		unsubscribe: unsubscribe,
		logger:      logger.Named("tui"),
		input:       ti,
		viewport:    viewport.New(80, 20),
		spinner:     sp,
		progress:    progress.New(progress.WithDefaultGradient()),
		styles:      defaultStyles(),
	}
}

// Close stops the snapshot subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Run drives the model until the user quits or ctx is done.
func Run(ctx context.Context, conv Conversation, logger *zap.Logger) error {
	m := New(conv, logger)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForSnapshot())
}

// waitForSnapshot listens for the next store snapshot.
func (m Model) waitForSnapshot() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		panelChanged := m.snap.UploadSurfaceOpen != msg.UploadSurfaceOpen
		m.snap = conversation.Snapshot(msg)
		if panelChanged && m.ready {
			m.viewport.Height = m.historyHeight()
		}
		m.refresh()
		return m, m.waitForSnapshot()

	case closedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) resize(msg tea.WindowSizeMsg) Model {
	m.width, m.height = msg.Width, msg.Height

	m.viewport.Width = msg.Width
	m.viewport.Height = m.historyHeight()
	m.input.Width = max(msg.Width-4, 10)
	m.progress.Width = max(msg.Width-8, 10)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(msg.Width-4, 20)),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", zap.Error(err))
	}
	m.renderer = renderer
	m.ready = true
	m.refresh()
	return m
}

// historyHeight is the space left for the transcript after the header,
// upload panel, status line and input.
func (m Model) historyHeight() int {
	chrome := 4
	if m.snap.UploadSurfaceOpen {
		chrome += 6
	}
	return max(m.height-chrome, 3)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		text := m.input.Value()
		m.input.Reset()
		if strings.HasPrefix(strings.TrimSpace(text), "/") {
			m.conv.UpdateDraft("")
			return m.runCommand(strings.TrimSpace(text))
		}
		m.conv.UpdateDraft(text)
		m.notice = ""
		if _, err := m.conv.SendDraft(); err != nil {
			m.notice = describe(err)
			m.input.SetValue(text)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.conv.UpdateDraft(m.input.Value())
	return m, cmd
}

func describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, orchestrator.ErrBusy):
		return "Still waiting for the previous answer."
	case errors.Is(err, orchestrator.ErrEmptyInput):
		return "Type a question first."
	}
	return err.Error()
}
