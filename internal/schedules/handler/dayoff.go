package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"clinicbook/internal/schedules/service"
	httputil "clinicbook/pkg/http"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

type DayOffHandler struct {
	service service.DayOffService
	log     *logger.Logger
}

func NewDayOffHandler(service service.DayOffService, log *logger.Logger) *DayOffHandler {
	return &DayOffHandler{
		service: service,
		log:     log,
	}
}

type reviewDayOffRequest struct {
	Status model.DayOffStatus `json:"status"`
}

func (h *DayOffHandler) Request(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Request", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var d model.DayOff
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Request", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Request(r.Context(), &d, actor); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Request", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, d); err != nil {
		h.log.Error("failed to write created response", "handler", "Request", "operation", "WriteCreated", "error", err)
	}
}

func (h *DayOffHandler) Review(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Review", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var req reviewDayOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Review", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Review(r.Context(), ps.ByName("id"), req.Status, actor); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Review", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *DayOffHandler) ListByDoctor(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	dayOffs, err := h.service.ListByDoctor(r.Context(), ps.ByName("doctorId"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByDoctor", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, dayOffs); err != nil {
		h.log.Error("failed to write success response", "handler", "ListByDoctor", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DayOffHandler) Remove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Remove", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := h.service.Remove(r.Context(), ps.ByName("id"), actor); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Remove", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *DayOffHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/dayoffs", h.Request)
	router.PATCH("/dayoffs/:id/review", h.Review)
	router.GET("/doctors/:doctorId/dayoffs", h.ListByDoctor)
	router.DELETE("/dayoffs/:id", h.Remove)
}
