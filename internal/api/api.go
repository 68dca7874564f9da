package api

import (
	"net/http"

	sessionHandler "voice-agent-server/internal/callsession/handler"
	"voice-agent-server/internal/monitor"
	"voice-agent-server/internal/ratelimit"
	"voice-agent-server/internal/webhooks"

	"github.com/gin-gonic/gin"
)

type API struct {
	router         *gin.RouterGroup
	webhookHandler webhooks.Handler
	sessionHandler sessionHandler.Handler
	monitorHub     *monitor.Hub
	rateLimiter    *ratelimit.Service
}

func New(router *gin.RouterGroup, webhookHandler webhooks.Handler, sessionHandler sessionHandler.Handler,
	monitorHub *monitor.Hub, rateLimiter *ratelimit.Service) API {
	return API{
		router:         router,
		webhookHandler: webhookHandler,
		sessionHandler: sessionHandler,
		monitorHub:     monitorHub,
		rateLimiter:    rateLimiter,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")
	{
		callsGroup := apiGroup.Group("/calls")
		callsGroup.POST("/events", a.rateLimiter.Middleware(), a.webhookHandler.HandleInboundEvents)
		callsGroup.POST("/callbacks/:contextId", a.rateLimiter.Middleware(), a.webhookHandler.HandleCallbacks)
		callsGroup.GET("/:id/transcript", a.sessionHandler.HandleGetTranscript)
		callsGroup.GET("/monitor", a.monitorHub.HandleMonitor)
	}
}

func (a *API) Health() {
	a.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
