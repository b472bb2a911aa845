package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/docchat/client/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypeDraftUpdate  = "draft:update"
	MsgTypeQuestionSend = "question:send"
	MsgTypeUploadOpen   = "upload:open"
	MsgTypeUploadClose  = "upload:close"
	MsgTypeUploadSelect = "upload:select"
	MsgTypeUploadSubmit = "upload:submit"
	MsgTypeUploadCancel = "upload:cancel"
	MsgTypePing         = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSnapshot  = "snapshot"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope for every frame in both directions
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// TextPayload carries a draft or a question
type TextPayload struct {
	Text string `json:"text"`
}

// FileUploadPayload carries a selected file inline
type FileUploadPayload struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64 encoded file
}

// WSErrorResponse is the payload of an error frame
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes conversation snapshots and accepts intents over a
// single connection
type WebSocketHandler struct {
	conv     Conversation
	stager   *storage.Stager
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(conv Conversation, stager *storage.Stager, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		conv:   conv,
		stager: stager,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Timestamp = time.Now().UnixMilli()
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket upgrades the connection, streams snapshots and dispatches
// incoming intents
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := &wsConn{ws: ws}
	wsh.logger.Info("client connected", zap.String("remote", c.RealIP()))

	updates, unsubscribe := wsh.conv.Subscribe()
	defer unsubscribe()

	_ = conn.send(WSMessage{Type: MsgTypeConnected})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range updates {
			if err := conn.send(WSMessage{Type: MsgTypeSnapshot, Payload: mustJSON(snap)}); err != nil {
				return
			}
		}
	}()

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Warn("connection error", zap.Error(err))
			}
			break
		}
		wsh.dispatch(conn, msg)
	}

	unsubscribe()
	wg.Wait()
	wsh.logger.Info("client disconnected")
	return nil
}

func (wsh *WebSocketHandler) dispatch(conn *wsConn, msg WSMessage) {
	switch msg.Type {
	case MsgTypePing:
		_ = conn.send(WSMessage{Type: MsgTypePong, ID: msg.ID})

	case MsgTypeDraftUpdate:
		var p TextPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			wsh.sendError(conn, msg.ID, NewBadRequestError("invalid draft payload", err))
			return
		}
		wsh.conv.UpdateDraft(p.Text)

	case MsgTypeQuestionSend:
		var p TextPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				wsh.sendError(conn, msg.ID, NewBadRequestError("invalid question payload", err))
				return
			}
		}
		var err error
		if p.Text != "" {
			_, err = wsh.conv.SendQuestion(p.Text)
		} else {
			_, err = wsh.conv.SendDraft()
		}
		if err != nil {
			wsh.sendError(conn, msg.ID, FromIntentError(err))
		}

	case MsgTypeUploadOpen:
		wsh.conv.OpenUploadSurface()

	case MsgTypeUploadClose:
		wsh.conv.CloseUploadSurface()

	case MsgTypeUploadSelect:
		var p FileUploadPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Name == "" {
			wsh.sendError(conn, msg.ID, NewValidationError("name"))
			return
		}
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			wsh.sendError(conn, msg.ID, NewValidationError("data"))
			return
		}
		staged, err := wsh.stager.Stage(p.Name, bytes.NewReader(data))
		if err != nil {
			wsh.sendError(conn, msg.ID, FromIntentError(err))
			return
		}
		if _, err := selectStaged(wsh.conv, staged); err != nil {
			wsh.sendError(conn, msg.ID, FromIntentError(err))
		}

	case MsgTypeUploadSubmit:
		if _, err := wsh.conv.SubmitUpload(); err != nil {
			wsh.sendError(conn, msg.ID, FromIntentError(err))
		}

	case MsgTypeUploadCancel:
		wsh.conv.CancelUpload()

	default:
		wsh.sendError(conn, msg.ID, &APIError{
			Status:  http.StatusBadRequest,
			Code:    "INVALID_TYPE",
			Message: "Unknown message type: " + msg.Type,
		})
	}
}

func (wsh *WebSocketHandler) sendError(conn *wsConn, id string, apiErr *APIError) {
	if err := conn.send(WSMessage{
		Type: MsgTypeError,
		ID:   id,
		Payload: mustJSON(WSErrorResponse{
			Message: apiErr.Message,
			Code:    apiErr.Code,
		}),
	}); err != nil {
		wsh.logger.Warn("failed to send message", zap.Error(err))
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return data
}
