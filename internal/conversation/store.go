// Package conversation is the process-local state container for one chat: it
// composes the transcript, the question orchestrator and the upload pipeline,
// accepts user intents and publishes read-only snapshots.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/orchestrator"
	"github.com/docchat/client/internal/transcript"
	"github.com/docchat/client/internal/upload"
	"go.uber.org/zap"
)

// ErrClosed is returned by intents issued after Close.
var ErrClosed = errors.New("conversation closed")

// Config wires a Store to its collaborators.
type Config struct {
	Log       *transcript.Log
	Asker     orchestrator.Asker
	Transport upload.Transport
	Validator upload.Validator

	AskTimeout    time.Duration
	UploadTimeout time.Duration

	// CloseOnSuccess hides the upload surface after a successful transfer.
	CloseOnSuccess bool
	// CancelOnClose aborts the in-flight transfer when the surface is closed.
	CancelOnClose bool

	Logger *zap.Logger
}

// Snapshot is the read model handed to the view layer.
type Snapshot struct {
	Version           uint64                `json:"version"`
	User              models.Participant    `json:"user"`
	Responder         models.Participant    `json:"responder"`
	Messages          []models.Message      `json:"messages"`
	Draft             string                `json:"draft"`
	Busy              bool                  `json:"busy"`
	Upload            models.UploadSnapshot `json:"upload"`
	UploadSurfaceOpen bool                  `json:"uploadSurfaceOpen"`
}

// Store owns the conversation state. Intents are serialised by an intent
// lock; backend calls run on goroutines tracked until Close.
type Store struct {
	cfg      Config
	log      *transcript.Log
	orch     *orchestrator.Orchestrator
	pipeline *upload.Pipeline
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // intent lock
	closed bool

	stateMu     sync.RWMutex
	draft       string
	surfaceOpen bool

	subsMu  sync.Mutex
	version uint64
	subs    map[int]chan Snapshot
	nextSub int
}

// New creates a Store. The returned store must be closed.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	log := cfg.Log
	if log == nil {
		log = transcript.New(
			models.Participant{ID: "123", Name: "You"},
			models.Participant{ID: "pdf-server", Name: "Bot"},
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		cfg:    cfg,
		log:    log,
		logger: logger.Named("conversation"),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan Snapshot),
	}
	s.orch = orchestrator.New(log, cfg.Asker, orchestrator.Options{
		Timeout:  cfg.AskTimeout,
		Logger:   logger,
		OnChange: s.publish,
	})
	s.pipeline = upload.NewPipeline(cfg.Transport, upload.Options{
		Validator: cfg.Validator,
		Timeout:   cfg.UploadTimeout,
		Logger:    logger,
		OnChange:  s.publish,
	})
	return s
}

// UpdateDraft replaces the input buffer.
func (s *Store) UpdateDraft(text string) {
	s.stateMu.Lock()
	s.draft = text
	s.stateMu.Unlock()
	s.publish()
}

// SendQuestion records text as the user's question, clears the draft and
// dispatches the backend call. A blank question or one sent while another is
// awaiting its answer changes nothing.
func (s *Store) SendQuestion(text string) (*orchestrator.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil, orchestrator.ErrEmptyInput
	}
	if s.orch.Busy() {
		return nil, orchestrator.ErrBusy
	}

	// Busy only turns true under s.mu, so Begin cannot lose the race here.
	// The draft is cleared first so Begin's snapshot carries both changes.
	s.stateMu.Lock()
	prevDraft := s.draft
	s.draft = ""
	s.stateMu.Unlock()

	ex, err := s.orch.Begin(text)
	if err != nil {
		s.stateMu.Lock()
		s.draft = prevDraft
		s.stateMu.Unlock()
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.orch.Complete(s.ctx, ex)
	}()
	return ex, nil
}

// SendDraft sends the current input buffer as a question.
func (s *Store) SendDraft() (*orchestrator.Exchange, error) {
	s.stateMu.RLock()
	draft := s.draft
	s.stateMu.RUnlock()
	return s.SendQuestion(draft)
}

// OpenUploadSurface shows the upload surface.
func (s *Store) OpenUploadSurface() {
	s.setSurface(true)
}

// CloseUploadSurface hides the upload surface. The session is kept; an
// in-flight transfer is only aborted when CancelOnClose is set.
func (s *Store) CloseUploadSurface() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.CancelOnClose {
		s.pipeline.Cancel()
	}
	s.setSurface(false)
}

// SelectFile validates f and makes it the candidate file.
func (s *Store) SelectFile(f upload.File) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.pipeline.Select(f)
}

// SubmitUpload starts transferring the selected file in the background.
func (s *Store) SubmitUpload() (*upload.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	a, err := s.pipeline.Start(s.ctx)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.pipeline.Run(a); err == nil && s.cfg.CloseOnSuccess {
			s.setSurface(false)
		}
	}()
	return a, nil
}

// CancelUpload aborts the in-flight transfer. It reports whether one existed.
func (s *Store) CancelUpload() bool {
	return s.pipeline.Cancel()
}

// Busy reports whether a question is awaiting its answer.
func (s *Store) Busy() bool {
	return s.orch.Busy()
}

// Messages returns the transcript in append order.
func (s *Store) Messages() []models.Message {
	return s.log.Messages()
}

// Snapshot assembles the current read model.
func (s *Store) Snapshot() Snapshot {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	s.stateMu.RLock()
	draft, open := s.draft, s.surfaceOpen
	s.stateMu.RUnlock()

	return Snapshot{
		Version:           s.version,
		User:              s.log.User(),
		Responder:         s.log.Responder(),
		Messages:          s.log.Messages(),
		Draft:             draft,
		Busy:              s.orch.Busy(),
		Upload:            s.pipeline.Snapshot(),
		UploadSurfaceOpen: open,
	}
}

// Subscribe returns a channel receiving a snapshot after every change,
// starting with the current state. Slow readers skip intermediate snapshots
// but always receive the latest. The returned func unsubscribes.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	ch := make(chan Snapshot, 1)
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close cancels outstanding backend calls, waits for them to settle and
// releases staged files. Subscriber channels are closed.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.pipeline.Close()

	s.subsMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subs = nil
	s.subsMu.Unlock()

	s.logger.Info("conversation closed", zap.Int("messages", s.log.Len()))
}

func (s *Store) setSurface(open bool) {
	s.stateMu.Lock()
	changed := s.surfaceOpen != open
	s.surfaceOpen = open
	s.stateMu.Unlock()
	if changed {
		s.publish()
	}
}

// publish bumps the version and offers the new snapshot to every subscriber,
// replacing an unread older one.
func (s *Store) publish() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.version++
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
