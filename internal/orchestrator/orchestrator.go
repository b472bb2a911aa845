// Package orchestrator turns a question into a tracked exchange: it records the
// user's message, calls the question-answering backend once and reconciles the
// outcome into a responder message.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docchat/client/internal/backend"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/transcript"
	"go.uber.org/zap"
)

// Responder bodies used when the backend gives no usable answer.
const (
	FallbackNoReply = "No reply"
	FallbackError   = "Something went wrong. Please try again."
)

var (
	ErrEmptyInput = errors.New("question is empty")
	ErrBusy       = errors.New("a question is already awaiting a response")
)

// State is the lifecycle of one exchange.
type State int

const (
	StateIdle State = iota
	StateSending
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Asker issues a single question to the backend.
type Asker interface {
	Ask(ctx context.Context, question string) (*backend.AskResponse, error)
}

// Exchange tracks one question and its eventual answer.
type Exchange struct {
	Question models.Message

	mu    sync.Mutex
	state State
	reply models.Message
	err   error
	done  chan struct{}
}

// Done is closed when the responder message has been appended.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// State returns the exchange's current state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reply returns the responder message. Only valid after Done is closed.
func (e *Exchange) Reply() models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reply
}

// Err returns the backend failure, if the exchange failed.
func (e *Exchange) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Options configures an Orchestrator.
type Options struct {
	Timeout  time.Duration
	Logger   *zap.Logger
	OnChange func()
}

// Orchestrator serialises question attempts: at most one exchange is in
// flight at a time.
type Orchestrator struct {
	log      *transcript.Log
	asker    Asker
	timeout  time.Duration
	logger   *zap.Logger
	onChange func()

	mu      sync.Mutex
	pending *Exchange
}

// New creates an orchestrator appending to log and asking through asker.
func New(log *transcript.Log, asker Asker, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		log:      log,
		asker:    asker,
		timeout:  opts.Timeout,
		logger:   logger.Named("orchestrator"),
		onChange: opts.OnChange,
	}
}

// Begin appends the user's question and marks the orchestrator busy. Nothing
// changes when the question is blank or another exchange is in flight.
func (o *Orchestrator) Begin(question string) (*Exchange, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyInput
	}

	o.mu.Lock()
	if o.pending != nil {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	msg, ok := o.log.AppendUser(question)
	if !ok {
		o.mu.Unlock()
		return nil, ErrEmptyInput
	}
	ex := &Exchange{
		Question: msg,
		state:    StateSending,
		done:     make(chan struct{}),
	}
	o.pending = ex
	o.mu.Unlock()

	o.logger.Info("question sent", zap.String("message_id", msg.ID))
	o.notify()
	return ex, nil
}

// Complete performs the exchange's single backend call and appends the
// responder message. It always returns the orchestrator to idle.
func (o *Orchestrator) Complete(ctx context.Context, ex *Exchange) {
	var (
		body   = FallbackError
		status = models.MessageStatusError
		cause  error
	)

	defer o.finish(ex, &body, &status, &cause)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("ask panicked",
				zap.String("message_id", ex.Question.ID),
				zap.Any("panic", r))
			body, status = FallbackError, models.MessageStatusError
			cause = fmt.Errorf("ask panicked: %v", r)
		}
	}()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := o.asker.Ask(ctx, ex.Question.Body)
	if err != nil {
		cause = err
		return
	}

	body, status = FallbackNoReply, models.MessageStatusDelivered
	if resp != nil && resp.Answer != nil && *resp.Answer != "" {
		body = *resp.Answer
	}
}

func (o *Orchestrator) finish(ex *Exchange, body *string, status *models.MessageStatus, cause *error) {
	reply, err := o.log.AppendResponder(*body, *status, ex.Question.ID)
	if err != nil {
		// Only reachable with a bad status; fall back to an error reply.
		reply, _ = o.log.AppendResponder(FallbackError, models.MessageStatusError, ex.Question.ID)
	}

	ex.mu.Lock()
	ex.reply = reply
	ex.err = *cause
	if reply.Status == models.MessageStatusDelivered {
		ex.state = StateCompleted
	} else {
		ex.state = StateFailed
	}
	ex.mu.Unlock()

	o.mu.Lock()
	if o.pending == ex {
		o.pending = nil
	}
	o.mu.Unlock()

	if *cause != nil {
		o.logger.Warn("question failed",
			zap.String("message_id", ex.Question.ID),
			zap.Error(*cause))
	} else {
		o.logger.Info("answer received",
			zap.String("message_id", ex.Question.ID),
			zap.String("reply_id", reply.ID))
	}

	close(ex.done)
	o.notify()
}

// Ask runs a whole exchange and blocks until the responder message exists.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*Exchange, error) {
	ex, err := o.Begin(question)
	if err != nil {
		return nil, err
	}
	o.Complete(ctx, ex)
	return ex, nil
}

// Busy reports whether a question is awaiting its response.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != nil
}

// State reports the orchestrator-wide state: Sending while busy, else Idle.
func (o *Orchestrator) State() State {
	if o.Busy() {
		return StateSending
	}
	return StateIdle
}

func (o *Orchestrator) notify() {
	if o.onChange != nil {
		o.onChange()
	}
}
