package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "parcel/internal/errors"
	"parcel/internal/service"
)

type StatsHandler struct {
	service *service.StatsService
}

func NewStatsHandler(s *service.StatsService) *StatsHandler {
	return &StatsHandler{service: s}
}

func (h *StatsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetCurrent)
	return r
}

func (h *StatsHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetCurrent()
	if err != nil {
		sendAppError(w, apperrors.Wrap(err, apperrors.CodeInternalError, "load stats"))
		return
	}
	sendJSON(w, stats)
}
