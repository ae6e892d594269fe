package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MarkDoseTaken records that the user took the dose.
func (h *Handler) MarkDoseTaken(c *gin.Context) {
	dose, err := h.recorder.MarkTaken(c.Request.Context(), c.Param("dose_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.invalidate(dose.UserID)
	c.JSON(http.StatusOK, newDoseResponse(dose))
}

// SkipDose records that the user skipped the dose on purpose.
func (h *Handler) SkipDose(c *gin.Context) {
	dose, err := h.recorder.Skip(c.Request.Context(), c.Param("dose_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.invalidate(dose.UserID)
	c.JSON(http.StatusOK, newDoseResponse(dose))
}
