package event

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Upload lifecycle events
	UploadQueued    EventType = "upload.queued"
	UploadStarted   EventType = "upload.started"
	UploadProgress  EventType = "upload.progress"
	UploadCompleted EventType = "upload.completed"
	UploadError     EventType = "upload.error"
	UploadCancelled EventType = "upload.cancelled"

	// Pushed by the file host over its websocket
	Remote EventType = "remote"
)

// ETAUnknown represents an unknown ETA (when speed is 0)
const ETAUnknown = -1

// ProgressEvent represents a high-frequency progress update
type ProgressEvent struct {
	ID          string  `json:"id"`
	Sent        int64   `json:"sent"`
	Size        int64   `json:"size"`
	Transmitted int64   `json:"transmitted"`
	Fraction    float64 `json:"fraction"`
	Speed       int64   `json:"speed"`
	ETA         int     `json:"eta"` // -1 = unknown, 0 = done, >0 = seconds remaining
}

// LifecycleEvent represents a state change event
type LifecycleEvent struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RemoteEvent is a message from the file host, e.g. a file created or
// deleted on another device.
type RemoteEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is what subscribers receive
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// CalculateETA computes ETA from remaining bytes and speed
// Returns ETAUnknown (-1) when speed is 0
func CalculateETA(remaining, speed int64) int {
	if remaining <= 0 {
		return 0 // Done
	}
	if speed <= 0 {
		return ETAUnknown // Unknown
	}
	return int(remaining / speed)
}
