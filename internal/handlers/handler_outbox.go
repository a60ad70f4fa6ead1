package handlers

import (
	"net/http"

	portssvc "github.com/atlaserp/ledgercore/internal/core/ports/services"
	"github.com/atlaserp/ledgercore/internal/dto"
	"github.com/atlaserp/ledgercore/internal/middleware"
	"github.com/gin-gonic/gin"
)

// outboxHandler exposes the operational surface of the outbox relay.
type outboxHandler struct {
	outboxService portssvc.OutboxRelaySvcFacade
}

// newOutboxHandler creates a new outboxHandler.
func newOutboxHandler(outboxService portssvc.OutboxRelaySvcFacade) *outboxHandler {
	return &outboxHandler{outboxService: outboxService}
}

func (h *outboxHandler) getStats(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	tenantID, _ := middleware.GetTenantIDFromContext(c)

	stats, err := h.outboxService.Stats(c.Request.Context(), tenantID)
	if err != nil {
		respondWithError(c, logger, err, "Failed to retrieve outbox stats")
		return
	}

	c.JSON(http.StatusOK, dto.ToOutboxStatsResponse(stats))
}

func (h *outboxHandler) retryFailed(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	tenantID, _ := middleware.GetTenantIDFromContext(c)

	reset, err := h.outboxService.RetryFailedEvents(c.Request.Context(), tenantID)
	if err != nil {
		respondWithError(c, logger, err, "Failed to retry failed outbox entries")
		return
	}

	c.JSON(http.StatusOK, dto.RetryFailedResponse{Reset: reset})
}

// registerOutboxRoutes registers the relay's admin routes
func registerOutboxRoutes(group *gin.RouterGroup, outboxService portssvc.OutboxRelaySvcFacade) {
	handler := newOutboxHandler(outboxService)

	outbox := group.Group("/outbox")
	{
		outbox.GET("/stats", handler.getStats)
		outbox.POST("/retry-failed", handler.retryFailed)
	}
}
