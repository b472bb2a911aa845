package models

import "time"

// FileInfo represents metadata about a candidate upload file.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	SelectedAt time.Time `json:"selectedAt"`
}
