package tui

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docchat/client/internal/conversation"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/orchestrator"
	"github.com/docchat/client/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversation struct {
	mu        sync.Mutex
	updates   chan conversation.Snapshot
	draft     string
	sent      []string
	sendErr   error
	selected  []string
	submitted int
	cancelled bool
	surface   bool
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{updates: make(chan conversation.Snapshot, 1)}
}

func (f *fakeConversation) Subscribe() (<-chan conversation.Snapshot, func()) {
	return f.updates, func() {}
}

func (f *fakeConversation) UpdateDraft(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = text
}

func (f *fakeConversation) SendDraft() (*orchestrator.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, f.draft)
	f.draft = ""
	return &orchestrator.Exchange{}, nil
}

func (f *fakeConversation) OpenUploadSurface()  { f.surface = true }
func (f *fakeConversation) CloseUploadSurface() { f.surface = false }

func (f *fakeConversation) SelectFile(file upload.File) (*models.FileInfo, error) {
	f.selected = append(f.selected, file.Name())
	return upload.Validate(file)
}

func (f *fakeConversation) SubmitUpload() (*upload.Attempt, error) {
	f.submitted++
	return nil, upload.ErrMissingFile
}

func (f *fakeConversation) CancelUpload() bool {
	f.cancelled = true
	return false
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func press(t *testing.T, m Model, key tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: key})
	return next.(Model), cmd
}

func TestModel_EnterSendsDraft(t *testing.T) {
	conv := newFakeConversation()
	m := New(conv, nil)

	m = typeText(t, m, "what is on page 2?")
	assert.Equal(t, "what is on page 2?", conv.draft)

	m, _ = press(t, m, tea.KeyEnter)
	assert.Equal(t, []string{"what is on page 2?"}, conv.sent)
	assert.Empty(t, m.input.Value())
	assert.Empty(t, m.notice)
}

func TestModel_SendErrorKeepsInput(t *testing.T) {
	conv := newFakeConversation()
	conv.sendErr = orchestrator.ErrBusy
	m := New(conv, nil)

	m = typeText(t, m, "again")
	m, _ = press(t, m, tea.KeyEnter)

	assert.Empty(t, conv.sent)
	assert.Equal(t, "again", m.input.Value())
	assert.Equal(t, "Still waiting for the previous answer.", m.notice)
}

func TestModel_RendersSnapshot(t *testing.T) {
	conv := newFakeConversation()
	m := New(conv, nil)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	snap := conversation.Snapshot{
		User:      models.Participant{ID: "123", Name: "You"},
		Responder: models.Participant{ID: "pdf-server", Name: "Bot"},
		Messages: []models.Message{
			{SenderID: "123", DisplayName: "You", Time: "09:15 AM", Body: "hello there", Status: models.MessageStatusSent},
			{SenderID: "pdf-server", DisplayName: "Bot", Time: "09:15 AM", Body: "Something went wrong. Please try again.", Status: models.MessageStatusError},
		},
		Upload:            models.NewUploadSnapshot(),
		UploadSurfaceOpen: true,
	}
	next, cmd := m.Update(snapshotMsg(snap))
	m = next.(Model)
	require.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "hello there")
	assert.Contains(t, view, "Bot")
	assert.Contains(t, view, "Something went wrong. Please try again.")
	assert.Contains(t, view, "No file selected")
}

func TestModel_UploadCommands(t *testing.T) {
	conv := newFakeConversation()
	m := New(conv, nil)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain"), 0644))

	m = typeText(t, m, "/upload "+path)
	m, _ = press(t, m, tea.KeyEnter)
	assert.True(t, conv.surface)
	assert.Equal(t, []string{"notes.txt"}, conv.selected)
	assert.Empty(t, m.notice, "rejections surface through the snapshot")
	assert.Empty(t, conv.draft)

	m = typeText(t, m, "/submit")
	m, _ = press(t, m, tea.KeyEnter)
	assert.Equal(t, 1, conv.submitted)
	assert.Empty(t, m.notice)

	m = typeText(t, m, "/cancel")
	m, _ = press(t, m, tea.KeyEnter)
	assert.True(t, conv.cancelled)
	assert.Equal(t, "No upload in progress.", m.notice)

	m = typeText(t, m, "/close")
	m, _ = press(t, m, tea.KeyEnter)
	assert.False(t, conv.surface)

	m = typeText(t, m, "/bogus")
	m, _ = press(t, m, tea.KeyEnter)
	assert.Contains(t, m.notice, "Unknown command /bogus")
}

func TestModel_UploadMissingPath(t *testing.T) {
	conv := newFakeConversation()
	m := New(conv, nil)

	m = typeText(t, m, "/upload /does/not/exist.pdf")
	m, _ = press(t, m, tea.KeyEnter)
	assert.Empty(t, conv.selected)
	assert.NotEmpty(t, m.notice)
}

func TestModel_QuitsWhenStoreCloses(t *testing.T) {
	conv := newFakeConversation()
	m := New(conv, nil)

	close(conv.updates)
	msg := m.waitForSnapshot()()
	assert.IsType(t, closedMsg{}, msg)

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
