package models

import "time"

// UploadStatus is the processing state of an uploaded file.
type UploadStatus string

const (
	UploadStatusUploading  UploadStatus = "uploading"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusError      UploadStatus = "error"
)

// FileMetadata describes one uploaded file.
type FileMetadata struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        string       `json:"type"` // image, document, spreadsheet or other
	Size        int64        `json:"size"`
	UploadedAt  time.Time    `json:"uploadedAt"`
	ProcessedAt *time.Time   `json:"processedAt,omitempty"`
	Status      UploadStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
}

// Finish marks the upload as processed at t, failed when err is non-nil.
func (m *FileMetadata) Finish(t time.Time, err error) {
	m.ProcessedAt = &t
	if err != nil {
		m.Status = UploadStatusError
		m.Error = err.Error()
		return
	}
	m.Status = UploadStatusCompleted
}
