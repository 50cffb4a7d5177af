package handlers

import (
	"net/http"
	"strconv"

	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps an error kind to the HTTP status returned to clients.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindRequest:
		return http.StatusUnprocessableEntity
	case models.KindAuth, models.KindGateway:
		return http.StatusBadGateway
	case models.KindTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "kind", "retryable"} plus extra.
// Unclassified errors are logged and hidden behind a generic message.
func respondError(c *gin.Context, err error, extra gin.H) {
	kind := models.KindOf(err)
	status := statusFor(kind)

	body := gin.H{
		"error":     err.Error(),
		"kind":      string(kind),
		"retryable": models.IsRetryable(err),
	}
	if kind == "" {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		body["error"] = "Internal server error"
		body["kind"] = "internal"
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// currentUserID returns the authenticated user, answering 401 when absent.
func currentUserID(c *gin.Context) (string, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

// conversationID parses the :id route parameter, answering 400 when invalid.
func conversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return 0, false
	}
	return id, true
}
