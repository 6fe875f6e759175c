package model

import (
	"time"
)

// UploadStatus represents where an upload is in its lifecycle
// @enum queued,uploading,complete,error,cancelled
type UploadStatus string

const (
	StatusQueued    UploadStatus = "queued"
	StatusUploading UploadStatus = "uploading"
	StatusComplete  UploadStatus = "complete"
	StatusError     UploadStatus = "error"
	StatusCancelled UploadStatus = "cancelled"
)

// UploadMode says how the request body was produced.
type UploadMode string

const (
	ModeStreamed UploadMode = "streamed"
	ModeBuffered UploadMode = "buffered"
)

type UploadRecord struct {
	ID          string       `json:"id" validate:"required"`
	Path        string       `json:"path" validate:"required"`
	FileName    string       `json:"fileName" validate:"required"`
	Server      string       `json:"server"`
	Mode        UploadMode   `json:"mode"`
	Status      UploadStatus `json:"status" validate:"required"`
	Size        int64        `json:"size"`
	Sent        int64        `json:"sent"`
	URL         string       `json:"url,omitempty"`
	Raw         string       `json:"raw,omitempty"`
	RemoteID    string       `json:"remoteId,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Progress returns the completed share in percent.
func (r *UploadRecord) Progress() int {
	if r.Size <= 0 {
		if r.Status == StatusComplete {
			return 100
		}
		return 0
	}
	p := int(r.Sent * 100 / r.Size)
	if p > 100 {
		p = 100
	}
	return p
}

// TransitionTo moves the record to status and stamps the timestamps that go
// with it. The record is left untouched on an invalid transition.
func (r *UploadRecord) TransitionTo(status UploadStatus) error {
	if err := ValidateTransition(r.Status, status); err != nil {
		return err
	}
	now := time.Now()
	r.Status = status
	r.UpdatedAt = now
	switch status {
	case StatusUploading:
		r.StartedAt = &now
	case StatusComplete, StatusError, StatusCancelled:
		r.CompletedAt = &now
	}
	return nil
}

func (s UploadStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}
