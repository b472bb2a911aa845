package upload

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/docchat/client/internal/backend"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed event sequence and records the session
// state observed between events.
type scriptedTransport struct {
	events  []backend.UploadEvent
	calls   int
	observe func()
}

func (t *scriptedTransport) UploadPDF(ctx context.Context, p backend.Payload) iter.Seq[backend.UploadEvent] {
	t.calls++
	return func(yield func(backend.UploadEvent) bool) {
		for _, ev := range t.events {
			if !yield(ev) {
				return
			}
			if t.observe != nil && !ev.Terminal() {
				t.observe()
			}
		}
	}
}

func progress(pct int) backend.UploadEvent {
	return backend.UploadEvent{Kind: backend.UploadProgress, Sent: int64(pct), Total: 100}
}

func TestPipeline_ProgressThenSuccess(t *testing.T) {
	tr := &scriptedTransport{events: []backend.UploadEvent{
		progress(10),
		progress(55),
		progress(100),
		{Kind: backend.UploadSucceeded, Sent: 100, Total: 100, Body: []byte(`{"ok":true}`)},
	}}
	p := NewPipeline(tr, Options{})

	var seen []int
	tr.observe = func() {
		snap := p.Snapshot()
		require.NotNil(t, snap.Progress)
		seen = append(seen, *snap.Progress)
	}

	_, err := p.Select(BytesFile("doc.pdf", []byte("data")))
	require.NoError(t, err)
	require.NoError(t, p.Submit(context.Background()))

	assert.Equal(t, []int{10, 55, 100}, seen)

	snap := p.Snapshot()
	assert.Nil(t, snap.Progress)
	assert.False(t, snap.InFlight)
	assert.Empty(t, snap.ValidationError)
	assert.Equal(t, models.UploadStatusComplete, snap.Status)
	assert.Equal(t, `{"ok":true}`, snap.LastResult)
	require.NotNil(t, snap.SelectedFile)
	assert.Equal(t, "doc.pdf", snap.SelectedFile.Name)
}

func TestPipeline_ProgressThenFailure(t *testing.T) {
	tr := &scriptedTransport{events: []backend.UploadEvent{
		progress(10),
		progress(55),
		progress(100),
		{Kind: backend.UploadFailed, Err: &backend.Error{Op: "upload", Kind: backend.KindStatus, StatusCode: 500}},
	}}
	p := NewPipeline(tr, Options{})

	var last int
	tr.observe = func() { last = *p.Snapshot().Progress }

	_, err := p.Select(BytesFile("doc.pdf", []byte("data")))
	require.NoError(t, err)

	err = p.Submit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, backend.IsStatus(err, 500))
	assert.Equal(t, 100, last)

	snap := p.Snapshot()
	assert.Nil(t, snap.Progress)
	assert.Equal(t, MessageUploadFailed, snap.ValidationError)
	assert.Equal(t, models.UploadStatusError, snap.Status)
	require.NotNil(t, snap.SelectedFile, "selection is kept for retry")

	// Retry without reselecting.
	tr.events = []backend.UploadEvent{{Kind: backend.UploadSucceeded}}
	require.NoError(t, p.Submit(context.Background()))
	assert.Empty(t, p.Snapshot().ValidationError)
	assert.Equal(t, 2, tr.calls)
}

func TestPipeline_MissingFile(t *testing.T) {
	tr := &scriptedTransport{}
	p := NewPipeline(tr, Options{})

	err := p.Submit(context.Background())
	assert.ErrorIs(t, err, ErrMissingFile)
	assert.Zero(t, tr.calls)

	snap := p.Snapshot()
	assert.Equal(t, ReasonNoFile, snap.ValidationError)
	assert.Nil(t, snap.Progress)
	assert.Equal(t, models.UploadStatusIdle, snap.Status)
}

func TestPipeline_SequenceWithoutTerminalEvent(t *testing.T) {
	tr := &scriptedTransport{events: []backend.UploadEvent{progress(40)}}
	p := NewPipeline(tr, Options{})
	_, err := p.Select(BytesFile("doc.pdf", nil))
	require.NoError(t, err)

	err = p.Submit(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Nil(t, p.Snapshot().Progress)
}

func TestSession_RejectionKeepsPreviousSelection(t *testing.T) {
	p := NewPipeline(&scriptedTransport{}, Options{})

	_, err := p.Select(BytesFile("good.pdf", nil))
	require.NoError(t, err)

	_, err = p.Select(BytesFile("bad.docx", nil))
	require.Error(t, err)

	snap := p.Snapshot()
	assert.Equal(t, ReasonNotPDF, snap.ValidationError)
	require.NotNil(t, snap.SelectedFile)
	assert.Equal(t, "good.pdf", snap.SelectedFile.Name)

	_, err = p.Select(BytesFile("better.pdf", nil))
	require.NoError(t, err)
	snap = p.Snapshot()
	assert.Empty(t, snap.ValidationError)
	assert.Equal(t, "better.pdf", snap.SelectedFile.Name)
}

func TestSubmitClearsStaleError(t *testing.T) {
	tr := &scriptedTransport{events: []backend.UploadEvent{{Kind: backend.UploadSucceeded}}}
	p := NewPipeline(tr, Options{})

	_, err := p.Select(BytesFile("good.pdf", nil))
	require.NoError(t, err)
	_, err = p.Select(BytesFile("bad.txt", nil))
	require.Error(t, err)

	a, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.Snapshot().ValidationError)
	assert.Equal(t, 0, *p.Snapshot().Progress)
	require.NoError(t, p.Run(a))
}

func TestPipeline_RejectsOverlappingSubmit(t *testing.T) {
	p := NewPipeline(&scriptedTransport{}, Options{})
	_, err := p.Select(BytesFile("doc.pdf", nil))
	require.NoError(t, err)

	a, err := p.Start(context.Background())
	require.NoError(t, err)

	_, err = p.Start(context.Background())
	assert.ErrorIs(t, err, ErrUploadInProgress)
	assert.Equal(t, a.ID, p.Snapshot().AttemptID)

	_ = p.Run(a)
	<-a.Done()
	assert.False(t, p.Session().InFlight())
}

func TestPipeline_AgainstBackend(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	client := backend.NewClient(backend.Options{UploadURL: fb.UploadURL()})

	var (
		mu      sync.Mutex
		changes int
	)
	p := NewPipeline(client, Options{OnChange: func() {
		mu.Lock()
		changes++
		mu.Unlock()
	}})

	data := testutil.PDFBytes(256 << 10)
	_, err := p.Select(BytesFile("Quarterly.PDF", data))
	require.NoError(t, err)
	require.NoError(t, p.Submit(context.Background()))

	uploads := fb.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "file", uploads[0].FieldName)
	assert.Equal(t, "Quarterly.PDF", uploads[0].FileName)
	assert.Equal(t, "application/pdf", uploads[0].ContentType)
	assert.Equal(t, data, uploads[0].Data)

	snap := p.Snapshot()
	assert.Equal(t, models.UploadStatusComplete, snap.Status)
	assert.Equal(t, `{"status":"ok"}`, snap.LastResult)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, changes, 2)
}

func TestPipeline_BackendFailure(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetUploadHandler(testutil.FailWith(http.StatusUnprocessableEntity, "not a pdf"))
	client := backend.NewClient(backend.Options{UploadURL: fb.UploadURL()})
	p := NewPipeline(client, Options{})

	_, err := p.Select(BytesFile("doc.pdf", testutil.PDFBytes(64)))
	require.NoError(t, err)

	err = p.Submit(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, backend.IsStatus(err, http.StatusUnprocessableEntity))
	assert.Equal(t, MessageUploadFailed, p.Snapshot().ValidationError)
}

func TestPipeline_Cancel(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	fb.SetUploadHandler(testutil.Blocking(entered, release, testutil.AnswerWith(`{}`)))

	client := backend.NewClient(backend.Options{UploadURL: fb.UploadURL()})
	p := NewPipeline(client, Options{})
	_, err := p.Select(BytesFile("doc.pdf", testutil.PDFBytes(64)))
	require.NoError(t, err)

	a, err := p.Start(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- p.Run(a) }()
	<-entered

	assert.True(t, p.Cancel())
	err = <-errc
	assert.ErrorIs(t, err, context.Canceled)

	snap := p.Snapshot()
	assert.Equal(t, MessageUploadCancelled, snap.ValidationError)
	assert.Equal(t, models.UploadStatusCancelled, snap.Status)
	assert.Nil(t, snap.Progress)
	assert.False(t, p.Cancel())
}

type releasingFile struct {
	File
	mu       sync.Mutex
	released bool
}

func (f *releasingFile) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	return nil
}

func (f *releasingFile) isReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func TestSession_ReleasesReplacedFiles(t *testing.T) {
	p := NewPipeline(&scriptedTransport{}, Options{})

	first := &releasingFile{File: BytesFile("a.pdf", nil)}
	second := &releasingFile{File: BytesFile("b.pdf", nil)}
	rejected := &releasingFile{File: BytesFile("c.txt", nil)}

	_, err := p.Select(first)
	require.NoError(t, err)
	_, err = p.Select(rejected)
	require.Error(t, err)
	assert.True(t, rejected.isReleased())
	assert.False(t, first.isReleased())

	_, err = p.Select(second)
	require.NoError(t, err)
	assert.True(t, first.isReleased())

	p.Close()
	assert.True(t, second.isReleased())
}

func TestSession_DefersReleaseOfInFlightFile(t *testing.T) {
	p := NewPipeline(&scriptedTransport{events: []backend.UploadEvent{{Kind: backend.UploadSucceeded}}}, Options{})

	first := &releasingFile{File: BytesFile("a.pdf", nil)}
	_, err := p.Select(first)
	require.NoError(t, err)

	a, err := p.Start(context.Background())
	require.NoError(t, err)

	_, err = p.Select(BytesFile("b.pdf", nil))
	require.NoError(t, err)
	assert.False(t, first.isReleased())

	require.NoError(t, p.Run(a))
	assert.True(t, first.isReleased())
}

func TestOpenLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	f, err := OpenLocal(path)
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", f.Name())
	assert.Equal(t, int64(8), f.Size())

	_, err = OpenLocal(dir)
	assert.Error(t, err)

	_, err = OpenLocal(filepath.Join(dir, "missing.pdf"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPipeline_RetryAfterFileChanged(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetUploadHandler(testutil.FailWith(http.StatusInternalServerError, "down"))
	client := backend.NewClient(backend.Options{UploadURL: fb.UploadURL()})
	p := NewPipeline(client, Options{})

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, testutil.PDFBytes(100), 0o644))
	f, err := OpenLocal(path)
	require.NoError(t, err)
	_, err = p.Select(f)
	require.NoError(t, err)

	require.ErrorIs(t, p.Submit(context.Background()), ErrTransport)

	data := testutil.PDFBytes(5000)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	fb.SetUploadHandler(testutil.AnswerWith(`{"status":"ok"}`))

	require.NoError(t, p.Submit(context.Background()))
	assert.Equal(t, 2, fb.UploadCalls())
	uploads := fb.Uploads()
	require.Len(t, uploads, 2)
	assert.Equal(t, data, uploads[1].Data)
	assert.Equal(t, models.UploadStatusComplete, p.Snapshot().Status)
}
