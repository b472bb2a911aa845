package backend

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/docchat/client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPayload struct {
	name string
	data []byte
}

func (p memPayload) Name() string { return p.name }
func (p memPayload) Size() int64  { return int64(len(p.data)) }
func (p memPayload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p.data)), nil
}

type diskPayload struct {
	name string
	path string
	size int64
}

func (p diskPayload) Name() string { return p.name }
func (p diskPayload) Size() int64  { return p.size }
func (p diskPayload) Open() (io.ReadCloser, error) {
	return os.Open(p.path)
}

func collect(seq func(func(UploadEvent) bool)) []UploadEvent {
	var out []UploadEvent
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func TestUploadPDF_Success(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	c := NewClient(Options{UploadURL: fb.UploadURL()})

	data := testutil.PDFBytes(512 << 10)
	events := collect(c.UploadPDF(context.Background(), memPayload{name: "doc.pdf", data: data}))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, UploadSucceeded, last.Kind)
	assert.Equal(t, `{"status":"ok"}`, string(last.Body))

	prev := -1
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, UploadProgress, ev.Kind)
		assert.GreaterOrEqual(t, ev.Percent(), prev)
		prev = ev.Percent()
	}
	assert.Equal(t, 100, prev)

	uploads := fb.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, data, uploads[0].Data)
}

func TestUploadPDF_Failure(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetUploadHandler(testutil.FailWith(http.StatusInternalServerError, "disk full"))
	c := NewClient(Options{UploadURL: fb.UploadURL()})

	events := collect(c.UploadPDF(context.Background(), memPayload{name: "doc.pdf", data: []byte("%PDF-")}))
	last := events[len(events)-1]
	require.Equal(t, UploadFailed, last.Kind)
	assert.True(t, IsStatus(last.Err, http.StatusInternalServerError))
	assert.Contains(t, last.Err.Error(), "disk full")
}

func TestUploadPDF_EarlyStop(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	c := NewClient(Options{UploadURL: fb.UploadURL()})

	var n int
	for range c.UploadPDF(context.Background(), memPayload{name: "doc.pdf", data: testutil.PDFBytes(1 << 20)}) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestUploadPDF_OpenError(t *testing.T) {
	c := NewClient(Options{UploadURL: "http://127.0.0.1:1/upload-pdf"})

	events := collect(c.UploadPDF(context.Background(), failingPayload{}))
	require.Len(t, events, 1)
	assert.Equal(t, UploadFailed, events[0].Kind)

	var be *Error
	require.ErrorAs(t, events[0].Err, &be)
	assert.Equal(t, KindTransport, be.Kind)
}

type failingPayload struct{}

func (failingPayload) Name() string { return "gone.pdf" }
func (failingPayload) Size() int64  { return 0 }
func (failingPayload) Open() (io.ReadCloser, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestMultipartBody(t *testing.T) {
	payload := memPayload{name: `we"ird.pdf`, data: []byte("%PDF-1.4 body")}

	body, contentType, total, err := newMultipartBody(payload)
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), total)

	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)

	part, err := multipart.NewReader(bytes.NewReader(raw), params["boundary"]).NextPart()
	require.NoError(t, err)
	assert.Equal(t, "file", part.FormName())
	assert.Equal(t, `we"ird.pdf`, part.FileName())
	assert.Equal(t, "application/pdf", part.Header.Get("Content-Type"))

	got, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Equal(t, payload.data, got)
}

func TestMultipartBody_UsesCurrentFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, testutil.PDFBytes(100), 0o644))

	// Size reported at selection time, before the file was rewritten.
	payload := diskPayload{name: "doc.pdf", path: path, size: 100}
	data := testutil.PDFBytes(5000)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	body, contentType, total, err := newMultipartBody(payload)
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), total)

	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	part, err := multipart.NewReader(bytes.NewReader(raw), params["boundary"]).NextPart()
	require.NoError(t, err)
	got, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestUploadEventPercent(t *testing.T) {
	tests := []struct {
		sent, total int64
		want        int
	}{
		{0, 100, 0},
		{10, 100, 10},
		{1, 3, 33},
		{2, 3, 67},
		{100, 100, 100},
		{150, 100, 100},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UploadEvent{Sent: tt.sent, Total: tt.total}.Percent(), "%d/%d", tt.sent, tt.total)
	}
}
