package api

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"parcel/internal/model"
	"parcel/internal/service"
	"parcel/internal/utils"
)

type UploadHandler struct {
	service *service.UploadService
	// root, when set, confines enqueued paths to one directory.
	root string
}

func NewUploadHandler(s *service.UploadService, root string) *UploadHandler {
	return &UploadHandler{service: s, root: root}
}

func (h *UploadHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Enqueue)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Cancel)
	return r
}

// List godoc
// @Summary List uploads
// @Description Get upload history, newest first, optionally filtered by status
// @Tags uploads
// @Produce json
// @Param status query string false "Status to filter by"
// @Param limit query int false "Max number of items to return"
// @Success 200 {object} UploadListResponse
// @Failure 400 {object} ErrorResponse
// @Router /uploads [get]
func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.UploadStatus(r.URL.Query().Get(ParamStatus))
	if status != "" && !knownStatus(status) {
		sendError(w, "unknown status "+string(status), http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get(ParamLimit))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	uploads, err := h.service.List(status, limit)
	if err != nil {
		sendAppError(w, err)
		return
	}
	if uploads == nil {
		uploads = []*model.UploadRecord{}
	}

	sendJSON(w, UploadListResponse{
		Data: uploads,
		Meta: &Meta{Total: len(uploads), Limit: limit},
	})
}

// Enqueue godoc
// @Summary Upload a local file
// @Description Queue a file on this machine for upload to the configured host
// @Tags uploads
// @Accept json
// @Produce json
// @Param request body EnqueueRequest true "Upload request"
// @Success 202 {object} model.UploadRecord
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /uploads [post]
func (h *UploadHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	path := req.Path
	if h.root != "" {
		p, err := utils.ResolveUnder(path, h.root)
		if err != nil {
			sendError(w, err.Error(), http.StatusForbidden)
			return
		}
		path = p
	}
	name := req.Name
	if name == "" {
		name = filepath.Base(path)
	}
	if !utils.IsSafeFilename(name) {
		sendError(w, "invalid file name", http.StatusBadRequest)
		return
	}

	rec, err := h.service.Enqueue(path, req.Name, model.UploadMode(req.Mode))
	if err != nil {
		sendAppError(w, err)
		return
	}

	sendJSONStatus(w, http.StatusAccepted, rec)
}

// Get godoc
// @Summary Get an upload
// @Tags uploads
// @Produce json
// @Param id path string true "Upload ID"
// @Success 200 {object} model.UploadRecord
// @Failure 404 {object} ErrorResponse
// @Router /uploads/{id} [get]
func (h *UploadHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(chi.URLParam(r, ParamID))
	if err != nil {
		sendAppError(w, err)
		return
	}
	sendJSON(w, rec)
}

// Cancel godoc
// @Summary Cancel an upload
// @Description Stop a queued or running upload
// @Tags uploads
// @Param id path string true "Upload ID"
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /uploads/{id} [delete]
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(chi.URLParam(r, ParamID)); err != nil {
		sendAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func knownStatus(s model.UploadStatus) bool {
	switch s {
	case model.StatusQueued, model.StatusUploading, model.StatusComplete, model.StatusError, model.StatusCancelled:
		return true
	}
	return false
}
