// handlers_upload.go - Upload surface handlers
package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docchat/client/internal/conversation"
	"github.com/docchat/client/internal/models"
	"github.com/docchat/client/internal/storage"
	"github.com/docchat/client/internal/upload"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	conv          Conversation
	stager        *storage.Stager
	uploadTimeout time.Duration
	logger        *zap.Logger
}

// NewUploadHandler creates a new upload handler. Browser selections are
// staged through stager before they reach the conversation.
func NewUploadHandler(conv Conversation, stager *storage.Stager, uploadTimeout time.Duration, logger *zap.Logger) *UploadHandlerImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandlerImpl{conv: conv, stager: stager, uploadTimeout: uploadTimeout, logger: logger.Named("api")}
}

// uploadFileRequest is the JSON alternative to a multipart selection
type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded file content
}

// HandleOpenSurface shows the upload surface
func (h *UploadHandlerImpl) HandleOpenSurface(c echo.Context) error {
	h.conv.OpenUploadSurface()
	return c.JSON(http.StatusOK, h.conv.Snapshot().Upload)
}

// HandleCloseSurface hides the upload surface
func (h *UploadHandlerImpl) HandleCloseSurface(c echo.Context) error {
	h.conv.CloseUploadSurface()
	return c.JSON(http.StatusOK, h.conv.Snapshot().Upload)
}

// HandleSelectFile stages a multipart "file" field, or a base64 JSON body,
// and makes it the candidate file
func (h *UploadHandlerImpl) HandleSelectFile(c echo.Context) error {
	staged, err := h.stage(c)
	if err != nil {
		return err
	}

	info, err := selectStaged(h.conv, staged)
	if err != nil {
		h.logger.Info("selection rejected", zap.String("file", staged.Name()), zap.Error(err))
		return FromIntentError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// selectStaged hands staged to the conversation. A closed conversation never
// takes ownership, so the staged copy is removed here.
func selectStaged(conv Conversation, staged *storage.StagedFile) (*models.FileInfo, error) {
	info, err := conv.SelectFile(staged)
	if errors.Is(err, conversation.ErrClosed) {
		_ = staged.Release()
	}
	return info, err
}

// HandleListStaged lists the files currently held in the staging directory
func (h *UploadHandlerImpl) HandleListStaged(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"files": h.stager.List(limit),
	})
}

// HandleGetStaged returns the metadata of one staged file
func (h *UploadHandlerImpl) HandleGetStaged(c echo.Context) error {
	id := c.Param("id")
	info, err := h.stager.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("staged file", id)
		}
		return NewInternalError("failed to read staged file", err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *UploadHandlerImpl) stage(c echo.Context) (*storage.StagedFile, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var req uploadFileRequest
		if err := c.Bind(&req); err != nil {
			return nil, NewBadRequestError("invalid JSON body", err)
		}
		if req.Name == "" {
			return nil, NewValidationError("name")
		}
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return nil, NewValidationError("data")
		}
		staged, err := h.stager.Stage(req.Name, bytes.NewReader(data))
		if err != nil {
			return nil, FromIntentError(err)
		}
		return staged, nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, NewRejectedFileError(upload.ReasonNoFile)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	staged, err := h.stager.Stage(fh.Filename, src)
	if err != nil {
		return nil, FromIntentError(err)
	}
	return staged, nil
}

// HandleSubmitUpload starts transferring the selected file. With ?wait=true
// it responds once the transfer has ended.
func (h *UploadHandlerImpl) HandleSubmitUpload(c echo.Context) error {
	a, err := h.conv.SubmitUpload()
	if err != nil {
		return FromIntentError(err)
	}

	if !wantsWait(c) {
		return c.JSON(http.StatusAccepted, map[string]string{
			"attemptId": a.ID,
			"file":      a.Info.Name,
		})
	}
	extendWriteDeadline(c, h.uploadTimeout, h.logger)

	select {
	case <-a.Done():
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
	if err := a.Err(); err != nil {
		return FromIntentError(err)
	}
	return c.JSON(http.StatusOK, h.conv.Snapshot().Upload)
}

// HandleCancelUpload aborts the in-flight transfer
func (h *UploadHandlerImpl) HandleCancelUpload(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{
		"cancelled": h.conv.CancelUpload(),
	})
}
