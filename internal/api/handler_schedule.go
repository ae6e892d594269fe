package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medication-reminder-backend/internal/agenda"
)

// GetTodaySchedule returns today's slots for the user.
func (h *Handler) GetTodaySchedule(c *gin.Context) {
	day, err := h.agenda.Today(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

// GetSchedule returns the slots for ?date=YYYY-MM-DD, defaulting to today.
func (h *Handler) GetSchedule(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		h.GetTodaySchedule(c)
		return
	}

	date, err := agenda.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := h.agenda.ForDate(c.Request.Context(), c.Param("user_id"), date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

// GetStats returns adherence for ?period=daily|weekly|monthly.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.agenda.Stats(c.Request.Context(), c.Param("user_id"), agenda.Period(c.Query("period")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RunForUser materializes and schedules today's doses for one user, e.g.
// right after a medication was added.
func (h *Handler) RunForUser(c *gin.Context) {
	userID := c.Param("user_id")
	res, err := h.coord.RunForUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.invalidate(userID)
	c.JSON(http.StatusOK, res)
}
