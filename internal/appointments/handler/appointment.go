package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"clinicbook/internal/appointments/service"
	httputil "clinicbook/pkg/http"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
	"clinicbook/pkg/sealer"
)

type AppointmentHandler struct {
	service service.AppointmentService
	sealer  *sealer.Sealer
	log     *logger.Logger
}

// NewAppointmentHandler wires the HTTP surface. A nil sealer disables opaque
// booking references; everything else works the same.
func NewAppointmentHandler(service service.AppointmentService, sealer *sealer.Sealer, log *logger.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		service: service,
		sealer:  sealer,
		log:     log,
	}
}

// bookResponse carries the created appointment plus an opaque reference the
// patient can hand to payment or notification flows without exposing raw ids.
type bookResponse struct {
	*model.Appointment
	Reference string `json:"reference,omitempty"`
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Book", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var req model.BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Book", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.Book(r.Context(), &req, actor)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Book", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	resp := bookResponse{Appointment: appt}
	if h.sealer != nil {
		reference, err := h.sealer.Seal(appt.ID, appt.PatientID)
		if err != nil {
			h.log.Warn("failed to seal booking reference", "appointment_id", appt.ID, "error", err)
		} else {
			resp.Reference = reference
		}
	}

	if err := httputil.WriteCreated(w, resp); err != nil {
		h.log.Error("failed to write created response", "handler", "Book", "operation", "WriteCreated", "error", err)
	}
}

// GetByReference resolves an opaque booking reference minted at booking time.
// The embedded patient id must match the calling patient; admins may resolve
// any reference.
func (h *AppointmentHandler) GetByReference(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByReference", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if h.sealer == nil {
		if writeErr := httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{
			Error: "Booking references are not enabled",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "GetByReference", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appointmentID, patientID, err := h.sealer.Open(ps.ByName("token"))
	if err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid booking reference",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "GetByReference", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}
	if actor.Role == model.RolePatient && actor.SubjectID != patientID {
		if writeErr := httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{
			Error: "Reference does not belong to this patient",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "GetByReference", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.GetByID(r.Context(), appointmentID, actor)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByReference", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByReference", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "UpdateStatus", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var req model.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "UpdateStatus", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.UpdateStatus(r.Context(), ps.ByName("id"), req.Status, actor); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "UpdateStatus", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reschedule", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var req model.RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Reschedule", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.Reschedule(r.Context(), ps.ByName("id"), req.NewSlotID, actor)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reschedule", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "Reschedule", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	query := r.URL.Query()
	appointments, totalCount, err := h.service.List(
		r.Context(),
		actor,
		model.AppointmentStatus(query.Get("status")),
		query.Get("patient_id"),
		limit,
		offset,
	)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, appointments, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *AppointmentHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	appt, err := h.service.GetByID(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/appointments", h.Book)
	router.GET("/appointments", h.List)
	router.GET("/appointments/:id", h.GetByID)
	router.PATCH("/appointments/:id/status", h.UpdateStatus)
	router.PATCH("/appointments/:id/reschedule", h.Reschedule)
	// Separate prefix: httprouter cannot mix a static segment with the
	// :id wildcard under /appointments.
	router.GET("/booking-references/:token", h.GetByReference)
}
