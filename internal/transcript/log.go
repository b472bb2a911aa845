// Package transcript owns the append-only sequence of chat messages.
package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docchat/client/internal/models"
	"github.com/google/uuid"
)

// DefaultTimeFormat renders the short clock label shown next to a message.
const DefaultTimeFormat = "03:04 PM"

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithTimeFormat overrides the layout used for Message.Time.
func WithTimeFormat(layout string) Option {
	return func(l *Log) {
		if layout != "" {
			l.timeFormat = layout
		}
	}
}

// Log is the ordered message sequence of one conversation. Messages are only
// ever appended; there is no way to edit or remove one.
type Log struct {
	mu         sync.RWMutex
	user       models.Participant
	responder  models.Participant
	messages   []models.Message
	seq        uint64
	now        func() time.Time
	timeFormat string
}

// New creates an empty transcript between user and responder.
func New(user, responder models.Participant, opts ...Option) *Log {
	l := &Log{
		user:       user,
		responder:  responder,
		now:        time.Now,
		timeFormat: DefaultTimeFormat,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// User returns the local participant.
func (l *Log) User() models.Participant { return l.user }

// Responder returns the remote participant.
func (l *Log) Responder() models.Participant { return l.responder }

// AppendUser appends the user's question with status Sent. Blank text is
// declined and reported with false.
func (l *Log) AppendUser(text string) (models.Message, bool) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(l.user, l.responder, text, models.MessageStatusSent, ""), true
}

// AppendResponder appends a responder message linked to the question it
// answers. Only Delivered and Error are valid responder statuses.
func (l *Log) AppendResponder(text string, status models.MessageStatus, inReplyTo string) (models.Message, error) {
	if status != models.MessageStatusDelivered && status != models.MessageStatusError {
		return models.Message{}, fmt.Errorf("invalid responder status %q", status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(l.responder, l.user, text, status, inReplyTo), nil
}

func (l *Log) appendLocked(from, to models.Participant, text string, status models.MessageStatus, inReplyTo string) models.Message {
	l.seq++
	ts := l.now()
	msg := models.Message{
		ID:          newID(),
		Seq:         l.seq,
		SenderID:    from.ID,
		ReceiverID:  to.ID,
		DisplayName: from.Name,
		Timestamp:   ts,
		Time:        ts.Format(l.timeFormat),
		Body:        text,
		Status:      status,
		InReplyTo:   inReplyTo,
	}
	l.messages = append(l.messages, msg)
	return msg
}

// Messages returns a copy of the sequence in append order.
func (l *Log) Messages() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Last returns the most recent message.
func (l *Log) Last() (models.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.messages) == 0 {
		return models.Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// newID returns a time-ordered UUID. uuid.NewV7 keeps a monotonic sub-millisecond
// sequence, so ids stay distinct within one clock tick.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
