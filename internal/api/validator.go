package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "parcel/internal/errors"
	"parcel/internal/logger"
)

var validate = validator.New()

func sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set(HeaderContentType, MimeJSON)
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

func sendAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.L.Error("API request failed", zap.Error(err))
	}

	w.Header().Set(HeaderContentType, MimeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:  msg,
		Code:   status,
		Reason: string(apperrors.CodeOf(err)),
	})
}

func sendJSON(w http.ResponseWriter, data any) {
	w.Header().Set(HeaderContentType, MimeJSON)
	json.NewEncoder(w).Encode(data)
}

func sendJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set(HeaderContentType, MimeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	bodyBytes, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		sendError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		errMsg := "validation failed: "
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errMsg += fmt.Sprintf("[%s: %s] ", fe.Field(), fe.Tag())
			}
		} else {
			errMsg += err.Error()
		}

		logger.L.Warn("API validation failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("error", errMsg),
			zap.String("body", string(bodyBytes)),
		)

		sendError(w, errMsg, http.StatusBadRequest)
		return false
	}

	return true
}
