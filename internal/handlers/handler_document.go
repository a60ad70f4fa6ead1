package handlers

import (
	"log/slog"
	"net/http"

	"github.com/atlaserp/ledgercore/internal/core/domain"
	portssvc "github.com/atlaserp/ledgercore/internal/core/ports/services"
	"github.com/atlaserp/ledgercore/internal/dto"
	"github.com/atlaserp/ledgercore/internal/middleware"
	"github.com/gin-gonic/gin"
)

// documentHandler handles HTTP requests for documents and their ledger side.
type documentHandler struct {
	postingService portssvc.PostingSvcFacade
}

// newDocumentHandler creates a new documentHandler.
func newDocumentHandler(postingService portssvc.PostingSvcFacade) *documentHandler {
	return &documentHandler{postingService: postingService}
}

func (h *documentHandler) createDocument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for createDocument", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	tenantID, _ := middleware.GetTenantIDFromContext(c)
	actorID, _ := middleware.GetActorIDFromContext(c)

	doc, err := h.postingService.CreateDocument(c.Request.Context(), tenantID, req, actorID)
	if err != nil {
		respondWithError(c, logger, err, "Failed to create document")
		return
	}

	c.JSON(http.StatusCreated, dto.ToDocumentResponse(doc))
}

func (h *documentHandler) getDocument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	documentID := c.Param("documentID")
	tenantID, _ := middleware.GetTenantIDFromContext(c)

	doc, err := h.postingService.GetDocumentByID(c.Request.Context(), tenantID, documentID)
	if err != nil {
		respondWithError(c, logger, err, "Failed to retrieve document")
		return
	}

	c.JSON(http.StatusOK, dto.ToDocumentResponse(doc))
}

func (h *documentHandler) listDocuments(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	tenantID, _ := middleware.GetTenantIDFromContext(c)

	var params dto.ListDocumentsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Error("Failed to bind query for listDocuments", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	resp, err := h.postingService.ListDocuments(c.Request.Context(), tenantID, params)
	if err != nil {
		respondWithError(c, logger, err, "Failed to list documents")
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *documentHandler) updateDocument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	documentID := c.Param("documentID")

	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for updateDocument", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	tenantID, _ := middleware.GetTenantIDFromContext(c)
	actorID, _ := middleware.GetActorIDFromContext(c)

	doc, err := h.postingService.UpdateDocument(c.Request.Context(), tenantID, documentID, req, actorID)
	if err != nil {
		respondWithError(c, logger, err, "Failed to update document")
		return
	}

	c.JSON(http.StatusOK, dto.ToDocumentResponse(doc))
}

// transition builds a handler for one named workflow action.
func (h *documentHandler) transition(action domain.DocumentAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := middleware.GetLoggerFromCtx(c.Request.Context())
		documentID := c.Param("documentID")

		var req dto.TransitionDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Error("Failed to bind JSON for transition", slog.String("error", err.Error()), slog.String("action", string(action)))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
			return
		}

		tenantID, _ := middleware.GetTenantIDFromContext(c)
		actorID, _ := middleware.GetActorIDFromContext(c)

		doc, err := h.postingService.TransitionDocument(c.Request.Context(), tenantID, documentID, action, req, actorID)
		if err != nil {
			respondWithError(c, logger, err, "Failed to transition document")
			return
		}

		c.JSON(http.StatusOK, dto.ToDocumentResponse(doc))
	}
}

func (h *documentHandler) postDocument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	documentID := c.Param("documentID")

	var req dto.PostDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for postDocument", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	tenantID, _ := middleware.GetTenantIDFromContext(c)
	actorID, _ := middleware.GetActorIDFromContext(c)

	resp, err := h.postingService.PostDocument(c.Request.Context(), tenantID, documentID, req, actorID)
	if err != nil {
		respondWithError(c, logger, err, "Failed to post document")
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *documentHandler) reverseDocument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	documentID := c.Param("documentID")

	var req dto.ReverseDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for reverseDocument", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	tenantID, _ := middleware.GetTenantIDFromContext(c)
	actorID, _ := middleware.GetActorIDFromContext(c)

	resp, err := h.postingService.ReverseDocument(c.Request.Context(), tenantID, documentID, req, actorID)
	if err != nil {
		respondWithError(c, logger, err, "Failed to reverse document")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *documentHandler) getDocumentLedger(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	documentID := c.Param("documentID")
	tenantID, _ := middleware.GetTenantIDFromContext(c)

	event, postings, err := h.postingService.GetDocumentLedger(c.Request.Context(), tenantID, documentID)
	if err != nil {
		respondWithError(c, logger, err, "Failed to retrieve document ledger")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"eventID":      event.EventID,
		"eventType":    event.EventType,
		"description":  event.Description,
		"amount":       event.Amount,
		"currencyCode": event.CurrencyCode,
		"eventDate":    event.EventDate,
		"isReversal":   event.IsReversal,
		"postings":     dto.ToPostingResponses(postings),
	})
}

// registerDocumentRoutes registers document workflow and posting routes
func registerDocumentRoutes(group *gin.RouterGroup, postingService portssvc.PostingSvcFacade) {
	handler := newDocumentHandler(postingService)

	documents := group.Group("/documents")
	{
		documents.POST("", handler.createDocument)
		documents.GET("", handler.listDocuments)
		documents.GET("/:documentID", handler.getDocument)
		documents.PUT("/:documentID", handler.updateDocument)
		documents.POST("/:documentID/submit", handler.transition(domain.ActionSubmit))
		documents.POST("/:documentID/approve", handler.transition(domain.ActionApprove))
		documents.POST("/:documentID/cancel", handler.transition(domain.ActionCancel))
		documents.POST("/:documentID/post", handler.postDocument)
		documents.POST("/:documentID/reverse", handler.reverseDocument)
		documents.GET("/:documentID/ledger", handler.getDocumentLedger)
	}
}
