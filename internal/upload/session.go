package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/docchat/client/internal/models"
	"github.com/google/uuid"
)

// Messages surfaced when a transfer ends without success.
const (
	MessageUploadFailed    = "Upload failed. Please try again."
	MessageUploadCancelled = "Upload cancelled."
)

var (
	ErrMissingFile      = errors.New("no file selected")
	ErrUploadInProgress = errors.New("upload already in progress")
	ErrTransport        = errors.New("upload transport failure")
)

// Attempt is one submission of the selected file.
type Attempt struct {
	ID   string
	File File
	Info models.FileInfo

	ctx          context.Context
	cancel       context.CancelFunc
	cancelled    bool // guarded by Session.mu
	releaseAfter bool // guarded by Session.mu
	done         chan struct{}
	err          error
}

// Done is closed once the attempt has been folded back into the session.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Err returns the attempt's outcome. Only valid after Done is closed.
func (a *Attempt) Err() error {
	return a.err
}

// Session holds at most one candidate file and the state of its transfer.
// At most one attempt is outstanding at a time.
type Session struct {
	mu              sync.RWMutex
	file            File
	info            *models.FileInfo
	validationError string
	progress        *int
	status          models.UploadStatus
	attempt         *Attempt
	lastResult      string
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{status: models.UploadStatusIdle}
}

// Select runs f through the validator. A rejection records the reason and
// keeps the previous selection; an acceptance clears the error and replaces it.
func (s *Session) Select(f File, v Validator) (*models.FileInfo, error) {
	info, err := v.Validate(f)

	s.mu.Lock()
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			s.validationError = rej.Reason
		} else {
			s.validationError = ReasonNotPDF
		}
		discard := f != nil && f != s.file
		s.mu.Unlock()
		if discard {
			release(f)
		}
		return nil, err
	}

	old := s.file
	s.file = f
	s.info = info
	s.validationError = ""
	releaseOld := old != nil && old != f
	if releaseOld && s.attempt != nil && s.attempt.File == old {
		s.attempt.releaseAfter = true
		releaseOld = false
	}
	s.mu.Unlock()

	if releaseOld {
		release(old)
	}
	return info, nil
}

// begin starts an attempt for the selected file.
func (s *Session) begin(ctx context.Context) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt != nil {
		return nil, ErrUploadInProgress
	}

	s.validationError = ""
	if s.file == nil {
		s.validationError = ReasonNoFile
		return nil, ErrMissingFile
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &Attempt{
		ID:     uuid.NewString(),
		File:   s.file,
		Info:   *s.info,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.attempt = a
	zero := 0
	s.progress = &zero
	s.status = models.UploadStatusUploading
	return a, nil
}

// setProgress publishes pct for a; the last value wins. It reports whether the
// session changed.
func (s *Session) setProgress(a *Attempt, pct int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt != a {
		return false
	}
	if s.progress != nil && *s.progress == pct {
		return false
	}
	s.progress = &pct
	return true
}

// finish folds the outcome of a into the session and releases the attempt.
func (s *Session) finish(a *Attempt, result []byte, cause error) error {
	s.mu.Lock()
	if s.attempt != a {
		s.mu.Unlock()
		return nil
	}

	s.attempt = nil
	s.progress = nil

	var out error
	switch {
	case cause == nil:
		s.status = models.UploadStatusComplete
		s.validationError = ""
		s.lastResult = string(result)
	case a.cancelled:
		s.status = models.UploadStatusCancelled
		s.validationError = MessageUploadCancelled
		out = fmt.Errorf("upload %s: %w", a.ID, context.Canceled)
	default:
		s.status = models.UploadStatusError
		s.validationError = MessageUploadFailed
		out = fmt.Errorf("%w: %w", ErrTransport, cause)
	}
	releaseFile := a.releaseAfter
	s.mu.Unlock()

	a.cancel()
	a.err = out
	close(a.done)

	if releaseFile {
		release(a.File)
	}
	return out
}

// Cancel aborts the in-flight attempt, if any.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	a := s.attempt
	if a == nil {
		s.mu.Unlock()
		return false
	}
	a.cancelled = true
	s.mu.Unlock()

	a.cancel()
	return true
}

// InFlight reports whether a transfer is outstanding.
func (s *Session) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempt != nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() models.UploadSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.NewUploadSnapshot()
	snap.Status = s.status
	snap.ValidationError = s.validationError
	snap.LastResult = s.lastResult
	if s.info != nil {
		info := *s.info
		snap.SelectedFile = &info
	}
	if s.progress != nil {
		p := *s.progress
		snap.Progress = &p
	}
	if s.attempt != nil {
		snap.InFlight = true
		snap.AttemptID = s.attempt.ID
	}
	return snap
}

// Close releases the selected file's temporary storage, if it owns any.
func (s *Session) Close() {
	s.mu.Lock()
	f := s.file
	busy := s.attempt != nil && s.attempt.File == f
	if busy {
		s.attempt.releaseAfter = true
	}
	s.file = nil
	s.info = nil
	s.mu.Unlock()

	if f != nil && !busy {
		release(f)
	}
}

func release(f File) {
	if r, ok := f.(releaser); ok {
		_ = r.Release()
	}
}
