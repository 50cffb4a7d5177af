package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sms-relay-server/internal/carrier"
	"sms-relay-server/internal/config"
	"sms-relay-server/internal/db"
	"sms-relay-server/internal/handlers"
	"sms-relay-server/internal/notify"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/router"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP server together with the resources it owns
type Server struct {
	HTTP         *http.Server
	database     *db.Database
	broadcaster  *notify.Broadcaster
	stopDispatch context.CancelFunc
}

// SetupServer initializes the database, carrier client, services and routes
func SetupServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize database
	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := services.NewAuthService(database.Users())
	if cfg.Seed.Enable {
		if err := seedOperator(authService, cfg); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to seed database: %w", err)
		}
	}

	carrierCfg := carrier.Config{
		BaseURL:      cfg.Carrier.BaseURL,
		TokenURL:     cfg.Carrier.TokenURL,
		ClientID:     cfg.Carrier.ClientID,
		ClientSecret: cfg.Carrier.ClientSecret,
		SenderPhone:  cfg.Carrier.SenderPhone,
		SenderName:   cfg.Carrier.SenderName,
		Timeout:      cfg.Carrier.Timeout,
	}
	if carrierCfg.ClientID == "" || carrierCfg.ClientSecret == "" {
		logger.Warn("Carrier credentials not configured, outbound sends will fail")
	}
	httpClient := carrier.NewHTTPClient(carrierCfg)
	tokens := carrier.NewTokenManager(carrierCfg, database.Credentials(cfg.Security.TokenEncryptionKey), httpClient)
	gateway := carrier.NewGateway(carrierCfg, httpClient)

	broadcaster := notify.NewBroadcaster(cfg.Notify.QueueSize, cfg.Notify.SubscriberBuffer)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	go broadcaster.Run(dispatchCtx)

	messageService := services.NewMessageService(database, tokens, gateway, broadcaster, services.SenderConfig{
		Phone: cfg.Carrier.SenderPhone,
		Name:  cfg.Carrier.SenderName,
	})
	conversationService := services.NewConversationService(database)

	// Initialize router
	r := router.NewRouter(cfg, router.Handlers{
		Auth:          handlers.NewAuthHandler(cfg, authService),
		SMS:           handlers.NewSMSHandler(messageService),
		Webhooks:      handlers.NewWebhookHandler(messageService),
		Conversations: handlers.NewConversationHandler(conversationService),
		Events:        handlers.NewEventsHandler(broadcaster, handlers.DefaultPingInterval),
	}, version)

	// Create server with security timeouts; the event stream lifts its own write deadline
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		HTTP:         srv,
		database:     database,
		broadcaster:  broadcaster,
		stopDispatch: stopDispatch,
	}, nil
}

func seedOperator(authService *services.AuthService, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, created, err := authService.SeedOperator(ctx, cfg.Seed.Username, cfg.Seed.Password, cfg.Seed.Phone, cfg.Seed.Email)
	if err != nil {
		return err
	}
	if created {
		logger.Info("Seeded operator account", zap.String("user_id", user.ID), zap.String("username", user.Username))
	}
	return nil
}

// Close releases the broadcaster and the database
func (s *Server) Close() error {
	s.stopDispatch()
	s.broadcaster.Close()
	return s.database.Close()
}

// StartServer starts the HTTP server and shuts it down on SIGINT or SIGTERM
func StartServer(srv *Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return StartServerWithContext(ctx, srv)
}

// StartServerWithContext serves until ctx is done, then drains connections
func StartServerWithContext(ctx context.Context, srv *Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.HTTP.Addr))
		if err := srv.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		_ = srv.Close()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	// Event streams never finish on their own, so close subscriptions first
	srv.broadcaster.Close()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	shutdownErr := srv.HTTP.Shutdown(ctxShutdown)
	if err := srv.Close(); err != nil {
		logger.Warn("Failed to close database", zap.Error(err))
	}
	if shutdownErr != nil {
		return fmt.Errorf("server shutdown failed: %w", shutdownErr)
	}
	return nil
}
