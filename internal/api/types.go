package api

import "parcel/internal/model"

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	// Reason is the application error code, e.g. NOT_FOUND.
	Reason string `json:"reason,omitempty"`
}

// Uploads
type EnqueueRequest struct {
	Path string `json:"path" validate:"required"`
	Name string `json:"name" validate:"omitempty,max=255"`
	Mode string `json:"mode" validate:"omitempty,oneof=streamed buffered"`
}

type UploadListResponse struct {
	Data []*model.UploadRecord `json:"data"`
	Meta *Meta                 `json:"meta"`
}

type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit"`
}
