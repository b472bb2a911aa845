// Package upload validates, packages and transmits the document selected for
// ingestion, and tracks the transfer in an upload session.
package upload

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/docchat/client/internal/backend"
	"github.com/docchat/client/internal/models"
	"go.uber.org/zap"
)

var errNoResult = errors.New("upload ended without a result")

// Transport performs the multipart transfer and reports it as a finite
// sequence of progress events closed by one terminal event.
type Transport interface {
	UploadPDF(ctx context.Context, p backend.Payload) iter.Seq[backend.UploadEvent]
}

// Options configures a Pipeline.
type Options struct {
	Validator Validator
	Timeout   time.Duration
	Logger    *zap.Logger
	OnChange  func()
}

// Pipeline owns an upload session and drives its transfers.
type Pipeline struct {
	session   *Session
	transport Transport
	validator Validator
	timeout   time.Duration
	logger    *zap.Logger
	onChange  func()
}

// NewPipeline creates a pipeline with an empty session.
func NewPipeline(t Transport, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		session:   NewSession(),
		transport: t,
		validator: opts.Validator,
		timeout:   opts.Timeout,
		logger:    logger.Named("upload"),
		onChange:  opts.OnChange,
	}
}

// Session returns the pipeline's upload session.
func (p *Pipeline) Session() *Session {
	return p.session
}

// Snapshot returns a copy of the upload session.
func (p *Pipeline) Snapshot() models.UploadSnapshot {
	return p.session.Snapshot()
}

// Select validates f and makes it the candidate file.
func (p *Pipeline) Select(f File) (*models.FileInfo, error) {
	info, err := p.session.Select(f, p.validator)
	if err != nil {
		p.logger.Info("file rejected", zap.Error(err))
	} else {
		p.logger.Info("file selected",
			zap.String("file", info.Name),
			zap.Int64("bytes", info.Size))
	}
	p.notify()
	return info, err
}

// Start begins an attempt without transferring anything yet. It fails with
// ErrMissingFile when nothing is selected and ErrUploadInProgress when a
// transfer is outstanding.
func (p *Pipeline) Start(ctx context.Context) (*Attempt, error) {
	a, err := p.session.begin(ctx)
	if err != nil {
		p.logger.Info("upload not started", zap.Error(err))
		if errors.Is(err, ErrMissingFile) {
			p.notify()
		}
		return nil, err
	}
	p.logger.Info("upload attempt started",
		zap.String("attempt_id", a.ID),
		zap.String("file", a.Info.Name))
	p.notify()
	return a, nil
}

// Run transfers the attempt's file and folds the event sequence into the
// session. It blocks until the transfer ends.
func (p *Pipeline) Run(a *Attempt) (err error) {
	var (
		result  []byte
		outcome = errNoResult
	)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("upload panicked", zap.String("attempt_id", a.ID), zap.Any("panic", r))
			outcome = fmt.Errorf("upload panicked: %v", r)
		}
		err = p.session.finish(a, result, outcome)
		if err != nil {
			p.logger.Warn("upload failed", zap.String("attempt_id", a.ID), zap.Error(err))
		} else {
			p.logger.Info("upload succeeded", zap.String("attempt_id", a.ID))
		}
		p.notify()
	}()

	ctx := a.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	for ev := range p.transport.UploadPDF(ctx, a.File) {
		switch ev.Kind {
		case backend.UploadProgress:
			if p.session.setProgress(a, ev.Percent()) {
				p.notify()
			}
		case backend.UploadSucceeded:
			result, outcome = ev.Body, nil
		case backend.UploadFailed:
			outcome = ev.Err
		}
	}
	return nil
}

// Submit starts and runs an attempt, blocking until it ends.
func (p *Pipeline) Submit(ctx context.Context) error {
	a, err := p.Start(ctx)
	if err != nil {
		return err
	}
	return p.Run(a)
}

// Cancel aborts the in-flight transfer, if any.
func (p *Pipeline) Cancel() bool {
	if !p.session.Cancel() {
		return false
	}
	p.logger.Info("upload cancellation requested")
	return true
}

// Close releases the session's temporary storage.
func (p *Pipeline) Close() {
	p.session.Close()
}

func (p *Pipeline) notify() {
	if p.onChange != nil {
		p.onChange()
	}
}
