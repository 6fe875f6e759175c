package upload

import (
	"fmt"

	"github.com/google/uuid"
)

// Envelope holds the multipart framing around the file payload: everything
// before the first file byte and everything after the last one.
type Envelope struct {
	Boundary string
	FileName string
	Intro    []byte
	Outro    []byte
}

func NewEnvelope(boundary, fileName string) Envelope {
	intro := fmt.Sprintf("\r\n--%s\r\n"+
		"Content-Disposition: form-data; name=\"file\"; filename=\"%s\"\r\n"+
		"Content-Type: application/octet-stream\r\n\r\n", boundary, fileName)
	outro := fmt.Sprintf("\r\n--%s--\r\n", boundary)

	return Envelope{
		Boundary: boundary,
		FileName: fileName,
		Intro:    []byte(intro),
		Outro:    []byte(outro),
	}
}

// NewBoundary returns a fresh boundary token. One per job.
func NewBoundary() string {
	return "Boundary-" + uuid.NewString()
}

func (e Envelope) ContentType() string {
	return "multipart/form-data; boundary=" + e.Boundary
}

// ContentLength is the exact size of the request body for a file of fileSize bytes.
func (e Envelope) ContentLength(fileSize int64) int64 {
	return int64(len(e.Intro)) + fileSize + int64(len(e.Outro))
}
