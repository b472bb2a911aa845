// handlers_chat.go - Transcript and question handlers
package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/docchat/client/internal/conversation"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/orchestrator"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// ChatHandlerImpl implements the ChatHandler interface
type ChatHandlerImpl struct {
	conv       Conversation
	askTimeout time.Duration
	logger     *zap.Logger
}

// NewChatHandler creates a new chat handler. askTimeout bounds how long a
// waiting request may hold its connection.
func NewChatHandler(conv Conversation, askTimeout time.Duration, logger *zap.Logger) *ChatHandlerImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandlerImpl{conv: conv, askTimeout: askTimeout, logger: logger.Named("api")}
}

type draftRequest struct {
	Draft string `json:"draft"`
}

type questionRequest struct {
	Question string `json:"question"`
}

type questionResponse struct {
	Question models.Message  `json:"question"`
	Reply    *models.Message `json:"reply,omitempty"`
	State    string          `json:"state"`
}

// HandleGetState returns the full read model
func (h *ChatHandlerImpl) HandleGetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.conv.Snapshot())
}

// HandleGetStateMsgpack returns the read model encoded as MessagePack
func (h *ChatHandlerImpl) HandleGetStateMsgpack(c echo.Context) error {
	data, err := encodeMsgpack(h.conv.Snapshot())
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetMessages returns the transcript, optionally only messages after
// the given sequence number. total is always the transcript length.
func (h *ChatHandlerImpl) HandleGetMessages(c echo.Context) error {
	msgs := h.conv.Messages()
	total := len(msgs)

	if after := c.QueryParam("after"); after != "" {
		seq, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			return NewValidationError("after")
		}
		start := len(msgs)
		for i, m := range msgs {
			if m.Seq > seq {
				start = i
				break
			}
		}
		msgs = msgs[start:]
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
		"total":    total,
	})
}

// HandleUpdateDraft replaces the input buffer
func (h *ChatHandlerImpl) HandleUpdateDraft(c echo.Context) error {
	var req draftRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	h.conv.UpdateDraft(req.Draft)
	return c.NoContent(http.StatusNoContent)
}

// HandleSendQuestion sends the given question, or the current draft when the
// body carries none. With ?wait=true the response includes the reply.
func (h *ChatHandlerImpl) HandleSendQuestion(c echo.Context) error {
	var req questionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
	}

	send := h.conv.SendDraft
	if req.Question != "" {
		send = func() (*orchestrator.Exchange, error) { return h.conv.SendQuestion(req.Question) }
	}

	ex, err := send()
	if err != nil {
		return FromIntentError(err)
	}
	h.logger.Debug("question accepted", zap.String("message_id", ex.Question.ID))

	if !wantsWait(c) {
		return c.JSON(http.StatusAccepted, questionResponse{
			Question: ex.Question,
			State:    ex.State().String(),
		})
	}
	extendWriteDeadline(c, h.askTimeout, h.logger)

	select {
	case <-ex.Done():
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
	reply := ex.Reply()
	return c.JSON(http.StatusOK, questionResponse{
		Question: ex.Question,
		Reply:    &reply,
		State:    ex.State().String(),
	})
}

func encodeMsgpack(snap conversation.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
