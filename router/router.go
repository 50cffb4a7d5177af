package router

import (
	"net/http"
	"time"

	"sms-relay-server/internal/config"
	"sms-relay-server/internal/handlers"
	"sms-relay-server/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const (
	serviceName = "sms-relay-server"

	// MaxRequestBodyBytes caps every request body.
	MaxRequestBodyBytes = 1 << 20
)

// Handlers bundles the HTTP handlers served by the router
type Handlers struct {
	Auth          *handlers.AuthHandler
	SMS           *handlers.SMSHandler
	Webhooks      *handlers.WebhookHandler
	Conversations *handlers.ConversationHandler
	Events        *handlers.EventsHandler
}

type Router struct {
	engine  *gin.Engine
	version string
}

// NewRouter wires the middleware chain and every API route
func NewRouter(cfg *config.Config, h Handlers, version string) *Router {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if h.Auth == nil || h.SMS == nil || h.Webhooks == nil || h.Conversations == nil || h.Events == nil {
		panic("handlers cannot be nil")
	}

	r := &Router{
		engine:  gin.New(),
		version: version,
	}
	r.engine.HandleMethodNotAllowed = true

	r.engine.Use(
		middleware.RequestIDMiddleware(),
		middleware.AuditLogMiddleware(),
	)
	if cfg.Server.ForceHTTPS {
		r.engine.Use(middleware.HTTPSRedirectMiddleware())
	}
	r.engine.Use(
		middleware.SecurityHeadersMiddleware(),
		middleware.CORSMiddleware(cfg.Server.AllowedOrigins),
		middleware.RequestSizeLimitMiddleware(MaxRequestBodyBytes),
		gin.Recovery(),
	)

	r.engine.GET("/health", r.handleHealth)
	r.engine.NoRoute(r.handleNotFound)
	r.engine.NoMethod(r.handleMethodNotAllowed)

	authGroup := r.engine.Group("/api/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
	}

	// Carrier callbacks carry no user token
	webhooks := r.engine.Group("/api/sms")
	{
		webhooks.POST("/receive-webhook", h.Webhooks.ReceiveSMS)
		webhooks.GET("/receive-webhook", h.Webhooks.DescribeReceiveSMS)
		webhooks.POST("/delivery-receipt", h.Webhooks.DeliveryReceipt)
	}

	smsGroup := r.engine.Group("/api/sms")
	smsGroup.Use(middleware.AuthMiddleware(cfg))
	{
		smsGroup.POST("/send", h.SMS.Send)
		smsGroup.GET("/history", h.SMS.History)
		smsGroup.GET("/balance", h.SMS.Balance)

		// search is registered before :id so it never parses as an ID
		smsGroup.GET("/conversations", h.Conversations.List)
		smsGroup.POST("/conversations", h.Conversations.Create)
		smsGroup.GET("/conversations/search", h.Conversations.Search)
		smsGroup.GET("/conversations/:id", h.Conversations.Get)
		smsGroup.GET("/conversations/:id/messages", h.Conversations.Messages)
		smsGroup.PATCH("/conversations/:id/mark-read", h.Conversations.MarkRead)
		smsGroup.PATCH("/conversations/:id/archive", h.Conversations.Archive)
	}

	// EventSource cannot set headers, so the stream also accepts ?token=
	r.engine.GET("/api/events", middleware.StreamAuthMiddleware(cfg), h.Events.Stream)

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"version": r.version,
		"service": serviceName,
	})
}

func (r *Router) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}

func (r *Router) handleMethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}
