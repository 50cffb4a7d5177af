package handlers

import (
	"net/http"

	"sms-relay-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateConversationRequest is the body of POST /api/sms/conversations
type CreateConversationRequest struct {
	ContactPhone string `json:"contact_phone"`
	ContactName  string `json:"contact_name"`
}

// ArchiveRequest is the body of PATCH /api/sms/conversations/:id/archive
type ArchiveRequest struct {
	Archived *bool `json:"archived"`
}

// ConversationHandler serves the authenticated user's conversations
type ConversationHandler struct {
	conversationService ConversationServiceInterface
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversationService ConversationServiceInterface) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// List handles GET /api/sms/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversations, err := h.conversationService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// Create handles POST /api/sms/conversations
// Returns 201 for a new conversation and 200 when it already existed
func (h *ConversationHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid create conversation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if req.ContactPhone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Contact phone is required"})
		return
	}

	conv, created, err := h.conversationService.Create(c.Request.Context(), userID, req.ContactPhone, req.ContactName)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conv)
}

// Search handles GET /api/sms/conversations/search?q=
func (h *ConversationHandler) Search(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversations, err := h.conversationService.Search(c.Request.Context(), userID, c.Query("q"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// Get handles GET /api/sms/conversations/:id
// Viewing a conversation marks its received messages read
func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := conversationID(c)
	if !ok {
		return
	}

	detail, err := h.conversationService.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Messages handles GET /api/sms/conversations/:id/messages
func (h *ConversationHandler) Messages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := conversationID(c)
	if !ok {
		return
	}

	messages, err := h.conversationService.Messages(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// MarkRead handles PATCH /api/sms/conversations/:id/mark-read
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := conversationID(c)
	if !ok {
		return
	}

	n, err := h.conversationService.MarkRead(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated_count": n})
}

// Archive handles PATCH /api/sms/conversations/:id/archive
func (h *ConversationHandler) Archive(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := conversationID(c)
	if !ok {
		return
	}

	var req ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Archived == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "archived flag is required"})
		return
	}

	conv, err := h.conversationService.SetArchived(c.Request.Context(), userID, id, *req.Archived)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, conv)
}
