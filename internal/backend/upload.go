package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxResultBytes bounds the success body kept from the ingestion endpoint.
const maxResultBytes = 1 << 20

// Payload is the file handed to UploadPDF.
type Payload interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// UploadEventKind distinguishes progress ticks from the terminal event.
type UploadEventKind int

const (
	UploadProgress UploadEventKind = iota
	UploadSucceeded
	UploadFailed
)

// UploadEvent is one element of an upload's event sequence. A sequence holds
// zero or more UploadProgress events followed by exactly one terminal event.
type UploadEvent struct {
	Kind  UploadEventKind
	Sent  int64
	Total int64
	Body  []byte // UploadSucceeded only
	Err   error  // UploadFailed only
}

// Terminal reports whether the event ends the sequence.
func (e UploadEvent) Terminal() bool {
	return e.Kind != UploadProgress
}

// Percent returns round(Sent*100/Total), clamped to [0,100].
func (e UploadEvent) Percent() int {
	if e.Total <= 0 {
		return 0
	}
	p := int(math.Round(float64(e.Sent) * 100 / float64(e.Total)))
	return min(max(p, 0), 100)
}

// UploadPDF returns the event sequence of one multipart POST carrying p as the
// field "file". The request starts when the sequence is ranged over; stopping
// the range early aborts the transfer.
func (c *Client) UploadPDF(ctx context.Context, p Payload) iter.Seq[UploadEvent] {
	return func(yield func(UploadEvent) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		events := make(chan UploadEvent)
		go c.runUpload(ctx, p, events)

		for ev := range events {
			if !yield(ev) {
				cancel()
				for range events {
				}
				return
			}
		}
	}
}

// eventSink serialises sends so that a late body read from the transport can
// never race the close of the channel.
type eventSink struct {
	mu     sync.Mutex
	ch     chan<- UploadEvent
	closed bool
}

func (s *eventSink) send(ev UploadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- ev
}

func (s *eventSink) finish(ev UploadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- ev
	s.closed = true
	close(s.ch)
}

func (c *Client) runUpload(ctx context.Context, p Payload, events chan<- UploadEvent) {
	const op = "upload"
	sink := &eventSink{ch: events}

	body, contentType, total, err := newMultipartBody(p)
	if err != nil {
		sink.finish(UploadEvent{Kind: UploadFailed, Err: &Error{Op: op, Kind: KindTransport, Err: err}})
		return
	}

	reader := &progressReader{
		r:     body,
		total: total,
		report: func(sent int64) {
			sink.send(UploadEvent{Kind: UploadProgress, Sent: sent, Total: total})
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, reader)
	if err != nil {
		body.Close()
		sink.finish(UploadEvent{Kind: UploadFailed, Err: &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("creating request: %w", err)}})
		return
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)

	c.logger.Info("upload started",
		zap.String("file", p.Name()),
		zap.Int64("bytes", total))
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		sink.finish(UploadEvent{Kind: UploadFailed, Err: &Error{Op: op, Kind: KindTransport, Err: err}})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readDetail(resp.Body)
		c.logger.Warn("upload rejected",
			zap.String("file", p.Name()),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		sink.finish(UploadEvent{Kind: UploadFailed, Err: &Error{Op: op, Kind: KindStatus, StatusCode: resp.StatusCode, Detail: detail}})
		return
	}

	result, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		sink.finish(UploadEvent{Kind: UploadFailed, Err: &Error{Op: op, Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}})
		return
	}

	c.logger.Info("upload complete",
		zap.String("file", p.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.ByteString("response", result))
	sink.finish(UploadEvent{Kind: UploadSucceeded, Sent: total, Total: total, Body: result})
}

// progressReader reports the running byte count whenever the rounded
// percentage changes.
type progressReader struct {
	r       io.ReadCloser
	total   int64
	sent    int64
	last    int
	started bool
	report  func(sent int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.sent += int64(n)
		pct := UploadEvent{Sent: r.sent, Total: r.total}.Percent()
		if !r.started || pct != r.last {
			r.started = true
			r.last = pct
			r.report(r.sent)
		}
	}
	return n, err
}

func (r *progressReader) Close() error {
	return r.r.Close()
}

type multiReadCloser struct {
	io.Reader
	io.Closer
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// newMultipartBody streams p between a precomputed multipart header and
// trailer so the exact Content-Length is known without buffering the file.
func newMultipartBody(p Payload) (io.ReadCloser, string, int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(p.Name())))
	h.Set("Content-Type", "application/pdf")
	if _, err := mw.CreatePart(h); err != nil {
		return nil, "", 0, fmt.Errorf("writing multipart header: %w", err)
	}
	headLen := buf.Len()
	if err := mw.Close(); err != nil {
		return nil, "", 0, fmt.Errorf("writing multipart trailer: %w", err)
	}
	head := bytes.Clone(buf.Bytes()[:headLen])
	tail := bytes.Clone(buf.Bytes()[headLen:])

	f, err := p.Open()
	if err != nil {
		return nil, "", 0, fmt.Errorf("opening %s: %w", p.Name(), err)
	}
	size, err := openedSize(p, f)
	if err != nil {
		f.Close()
		return nil, "", 0, fmt.Errorf("stat %s: %w", p.Name(), err)
	}

	total := int64(len(head)) + size + int64(len(tail))
	body := multiReadCloser{
		Reader: io.MultiReader(bytes.NewReader(head), io.LimitReader(f, size), bytes.NewReader(tail)),
		Closer: f,
	}
	return body, mw.FormDataContentType(), total, nil
}

// openedSize returns the length of the opened content. Files on disk may have
// changed since they were selected, so their handle is asked first.
func openedSize(p Payload, f io.ReadCloser) (int64, error) {
	if st, ok := f.(interface{ Stat() (os.FileInfo, error) }); ok {
		info, err := st.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	return p.Size(), nil
}
