package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medication-reminder-backend/internal/agenda"
	"medication-reminder-backend/internal/apperr"
	"medication-reminder-backend/internal/intake"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/mw"
	"medication-reminder-backend/internal/store"
	"medication-reminder-backend/internal/sweep"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	recorder  *intake.Recorder
	agenda    *agenda.Service
	coord     *sweep.Coordinator
	webpush   *webpush.Options
	responses *mw.ResponseCache
	log       *zap.Logger
}

// Deps are the services the handlers call into.
type Deps struct {
	Store     store.Store
	Recorder  *intake.Recorder
	Agenda    *agenda.Service
	Coord     *sweep.Coordinator
	WebPush   *webpush.Options
	Responses *mw.ResponseCache
	Log       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:     d.Store,
		recorder:  d.Recorder,
		agenda:    d.Agenda,
		coord:     d.Coord,
		webpush:   d.WebPush,
		responses: d.Responses,
		log:       log,
	}
}

// invalidate drops the cached reads of a user after one of their doses changed.
func (h *Handler) invalidate(userID string) {
	if h.responses != nil {
		h.responses.Invalidate(userID)
	}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	msg := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Err != nil {
		msg = appErr.Err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

type doseResponse struct {
	ID            string           `json:"id"`
	MedicationID  string           `json:"medication_id"`
	UserID        string           `json:"user_id"`
	SlotID        *string          `json:"slot_id,omitempty"`
	Slot          model.SlotLabel  `json:"slot"`
	ScheduledDate string           `json:"scheduled_date"`
	ScheduledTime string           `json:"scheduled_time"`
	Status        model.DoseStatus `json:"status"`
	TakenAt       *time.Time       `json:"taken_at,omitempty"`
}

func newDoseResponse(d *model.Dose) doseResponse {
	return doseResponse{
		ID:            d.ID,
		MedicationID:  d.MedicationID,
		UserID:        d.UserID,
		SlotID:        d.SlotID,
		Slot:          d.Slot,
		ScheduledDate: d.ScheduledDate.UTC().Format(agenda.DateLayout),
		ScheduledTime: d.ScheduledTime,
		Status:        d.Status,
		TakenAt:       d.TakenAt,
	}
}
