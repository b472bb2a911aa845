// Package testutil provides an in-process stand-in for the document backend.
package testutil

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// ReceivedUpload is one multipart request seen by the fake /upload-pdf.
type ReceivedUpload struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// FakeBackend serves /ask and /upload-pdf from an httptest server. Handlers
// can be swapped per test; the defaults answer "42" and accept any upload.
type FakeBackend struct {
	Server *httptest.Server

	mu            sync.RWMutex
	askHandler    http.HandlerFunc
	uploadHandler http.HandlerFunc
	questions     []string
	uploads       []ReceivedUpload

	askCalls    atomic.Int64
	uploadCalls atomic.Int64
}

// NewFakeBackend starts a fake backend that is closed with the test.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{}
	fb.askHandler = AnswerWith(`{"answer":"42"}`)
	fb.uploadHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok"}`)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", fb.serveAsk)
	mux.HandleFunc("POST /upload-pdf", fb.serveUpload)
	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Server.Close)
	return fb
}

// AskURL returns the fake question-answering endpoint.
func (fb *FakeBackend) AskURL() string { return fb.Server.URL + "/ask" }

// UploadURL returns the fake ingestion endpoint.
func (fb *FakeBackend) UploadURL() string { return fb.Server.URL + "/upload-pdf" }

// SetAskHandler replaces the /ask handler.
func (fb *FakeBackend) SetAskHandler(h http.HandlerFunc) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.askHandler = h
}

// SetUploadHandler replaces the /upload-pdf handler. The multipart body has
// already been consumed and recorded when h runs.
func (fb *FakeBackend) SetUploadHandler(h http.HandlerFunc) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.uploadHandler = h
}

// AskCalls returns how many /ask requests arrived.
func (fb *FakeBackend) AskCalls() int { return int(fb.askCalls.Load()) }

// UploadCalls returns how many /upload-pdf requests arrived.
func (fb *FakeBackend) UploadCalls() int { return int(fb.uploadCalls.Load()) }

// Questions returns the questions received so far.
func (fb *FakeBackend) Questions() []string {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	return append([]string(nil), fb.questions...)
}

// Uploads returns the uploads received so far.
func (fb *FakeBackend) Uploads() []ReceivedUpload {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	return append([]ReceivedUpload(nil), fb.uploads...)
}

func (fb *FakeBackend) serveAsk(w http.ResponseWriter, r *http.Request) {
	fb.askCalls.Add(1)

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		fb.mu.Lock()
		fb.questions = append(fb.questions, req.Question)
		fb.mu.Unlock()
	}

	fb.mu.RLock()
	h := fb.askHandler
	fb.mu.RUnlock()
	h(w, r)
}

func (fb *FakeBackend) serveUpload(w http.ResponseWriter, r *http.Request) {
	fb.uploadCalls.Add(1)

	if rec, err := readUpload(r); err == nil {
		fb.mu.Lock()
		fb.uploads = append(fb.uploads, rec...)
		fb.mu.Unlock()
	}

	fb.mu.RLock()
	h := fb.uploadHandler
	fb.mu.RUnlock()
	h(w, r)
}

func readUpload(r *http.Request) ([]ReceivedUpload, error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	var out []ReceivedUpload
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return out, err
		}
		out = append(out, ReceivedUpload{
			FieldName:   part.FormName(),
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
}

// AnswerWith returns a handler replying 200 with the given JSON body.
func AnswerWith(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

// FailWith returns a handler replying with status and a plain-text body.
func FailWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, body, status)
	}
}

// Blocking returns a handler that waits until release is closed or the
// request is abandoned, then delegates to next. entered receives one value per
// request once it is being served.
func Blocking(entered chan<- struct{}, release <-chan struct{}, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-release:
			next(w, r)
		case <-r.Context().Done():
		}
	}
}

// PDFBytes returns a minimal document with a PDF header, padded to size bytes.
func PDFBytes(size int) []byte {
	header := []byte("%PDF-1.4\n")
	if size < len(header) {
		size = len(header)
	}
	data := make([]byte, size)
	copy(data, header)
	for i := len(header); i < size; i++ {
		data[i] = 'x'
	}
	return data
}
