package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: upload u1 not found", NotFound("upload", "u1").Error())

	cause := stderrors.New("disk full")
	err := Wrap(cause, CodeInternalError, "save failed")
	assert.Equal(t, "INTERNAL_ERROR: save failed (disk full)", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("upload", "x"), http.StatusNotFound},
		{New(CodeValidationFailed, "bad"), http.StatusBadRequest},
		{New(CodeInvalidTransition, "no"), http.StatusConflict},
		{New(CodeInvalidOperation, "no"), http.StatusConflict},
		{New(CodeUploadFailed, "host"), http.StatusBadGateway},
		{New(CodeCancelled, "stop"), http.StatusRequestTimeout},
		{fmt.Errorf("wrapped: %w", New(CodeNotFound, "x")), http.StatusNotFound},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
