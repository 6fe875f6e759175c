package model

import "fmt"

// ValidTransitions defines allowed upload status transitions
var ValidTransitions = map[UploadStatus][]UploadStatus{
	"":              {StatusQueued}, // Initial state
	StatusQueued:    {StatusUploading, StatusCancelled, StatusError},
	StatusUploading: {StatusComplete, StatusError, StatusCancelled},
	StatusError:     {StatusQueued}, // For retry
	StatusCancelled: {StatusQueued},
}

func CanTransition(from, to UploadStatus) bool {
	allowed, exists := ValidTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to UploadStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}
