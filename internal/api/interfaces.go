// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/docchat/client/internal/conversation"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/orchestrator"
	"github.com/docchat/client/internal/upload"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// ChatHandler handles the transcript and question intents
type ChatHandler interface {
	HandleGetState(c echo.Context) error
	HandleGetStateMsgpack(c echo.Context) error
	HandleGetMessages(c echo.Context) error
	HandleUpdateDraft(c echo.Context) error
	HandleSendQuestion(c echo.Context) error
}

// UploadHandler handles the upload surface intents
type UploadHandler interface {
	HandleOpenSurface(c echo.Context) error
	HandleCloseSurface(c echo.Context) error
	HandleSelectFile(c echo.Context) error
	HandleSubmitUpload(c echo.Context) error
	HandleCancelUpload(c echo.Context) error
	HandleListStaged(c echo.Context) error
	HandleGetStaged(c echo.Context) error
}

// Conversation is the subset of conversation.Store used by the handlers.
// This allows mocking in tests
type Conversation interface {
	Snapshot() conversation.Snapshot
	Subscribe() (<-chan conversation.Snapshot, func())
	Messages() []models.Message
	UpdateDraft(text string)
	SendQuestion(text string) (*orchestrator.Exchange, error)
	SendDraft() (*orchestrator.Exchange, error)
	OpenUploadSurface()
	CloseUploadSurface()
	SelectFile(f upload.File) (*models.FileInfo, error)
	SubmitUpload() (*upload.Attempt, error)
	CancelUpload() bool
}

var _ Conversation = (*conversation.Store)(nil)
