package entity

import (
	"time"

	"github.com/google/uuid"
)

// LogFile is an uploaded sample stored on disk under a random name.
type LogFile struct {
	ID               uuid.UUID `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FilePath         string    `json:"-"`
	FileSize         int64     `json:"file_size"`
	UploadedAt       time.Time `json:"uploaded_at"`
}
