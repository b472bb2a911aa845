package models

// UploadStatus represents the state of the upload session's last transfer.
type UploadStatus string

const (
	UploadStatusIdle      UploadStatus = "idle"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusComplete  UploadStatus = "complete"
	UploadStatusError     UploadStatus = "error"
	UploadStatusCancelled UploadStatus = "cancelled"
)

// UploadSnapshot is a read-only copy of the upload session.
type UploadSnapshot struct {
	SelectedFile    *FileInfo    `json:"selectedFile,omitempty"`
	ValidationError string       `json:"validationError,omitempty"`
	Progress        *int         `json:"progress"` // nil when no transfer is in flight
	InFlight        bool         `json:"inFlight"`
	Status          UploadStatus `json:"status"`
	AttemptID       string       `json:"attemptId,omitempty"`
	LastResult      string       `json:"lastResult,omitempty"`
}

// NewUploadSnapshot creates an empty snapshot in idle status.
func NewUploadSnapshot() UploadSnapshot {
	return UploadSnapshot{Status: UploadStatusIdle}
}
