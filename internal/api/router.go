package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"medication-reminder-backend/config"
	"medication-reminder-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. Stats responses are
// cached through h's response cache, which the write handlers invalidate.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	// Per-IP token bucket; limiters of idle clients expire after 10 minutes.
	rateLimiter := mw.RateLimiter(mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, 10*time.Minute))

	responses := h.responses
	if responses == nil {
		responses = mw.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
		h.responses = responses
	}
	caching := mw.Cache(responses, mw.UserScope)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// POST /api/doses/{dose_id}/taken
		api.POST("/doses/:dose_id/taken", h.MarkDoseTaken)
		api.POST("/doses/:dose_id/skip", h.SkipDose)

		users := api.Group("/users/:user_id")
		users.GET("/schedule/today", h.GetTodaySchedule)
		users.GET("/schedule", h.GetSchedule)
		users.GET("/stats", caching, h.GetStats)
		users.POST("/run", h.RunForUser)

		users.GET("/subscriptions", h.GetSubscription)
		users.PUT("/subscriptions", h.PutSubscription)
		users.DELETE("/subscriptions", h.DeleteSubscription)

		users.GET("/settings", h.GetSettings)
		users.PUT("/settings", h.PutSettings)

		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
