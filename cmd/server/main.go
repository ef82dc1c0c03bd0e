package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chigogiggs/converse/internal/config"
	"github.com/chigogiggs/converse/internal/conversation"
	"github.com/chigogiggs/converse/internal/database"
	postgresrepo "github.com/chigogiggs/converse/internal/repository/postgres"
	"github.com/chigogiggs/converse/internal/service"
	"github.com/chigogiggs/converse/internal/translate"
	"github.com/chigogiggs/converse/internal/transport/http/handlers"
	"github.com/chigogiggs/converse/internal/transport/http/middleware"
	"github.com/chigogiggs/converse/internal/transport/ws"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Database
	pool, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)
	prefRepo := postgresrepo.NewPreferenceRepo(pool)

	// Live insert feed
	listener := postgresrepo.NewListener(pool, logger)
	go listener.Run(context.Background())

	// External collaborators
	gateway := translate.NewGateway(cfg.TranslateEndpoint, cfg.TranslateAPIKey, logger)
	media, err := service.NewMediaService(context.Background(), service.MediaConfig{
		Region:          cfg.AWSRegion,
		Bucket:          cfg.AWSS3Bucket,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		logger.Fatal("initializing media store", zap.Error(err))
	}

	// Services
	authService := service.NewAuthService(userRepo, prefRepo, cfg.JWTSecret, logger)
	messageService := service.NewMessageService(messageRepo)
	prefService := service.NewPreferenceService(prefRepo)

	// WebSocket hub + per-session conversation engines
	hub := ws.NewHub(logger)
	go hub.Run()
	messageService.SetNotifier(ws.NewHubNotifier(hub, logger))

	newEngine := func(viewerID uuid.UUID, sink conversation.Sink) *conversation.Engine {
		return conversation.NewEngine(
			conversation.SessionIdentity(viewerID),
			messageRepo, prefRepo, gateway, listener, sink, logger,
		)
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, logger)
	messageHandler := handlers.NewMessageHandler(messageService, media, logger)
	prefHandler := handlers.NewPreferenceHandler(prefService, logger)

	// Auth middleware
	auth := middleware.Auth(cfg.JWTSecret, logger)

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// Protected - Conversations
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(messageHandler.History)))
	mux.Handle("POST /api/v1/conversations/{id}/media", auth(http.HandlerFunc(messageHandler.SendMedia)))
	mux.Handle("GET /api/v1/media", auth(http.HandlerFunc(messageHandler.MediaURL)))
	mux.Handle("POST /api/v1/messages/{id}/read", auth(http.HandlerFunc(messageHandler.MarkRead)))
	mux.Handle("DELETE /api/v1/messages/{id}", auth(http.HandlerFunc(messageHandler.Delete)))

	// Protected - Preferences
	mux.Handle("GET /api/v1/preferences", auth(http.HandlerFunc(prefHandler.Get)))
	mux.Handle("PUT /api/v1/preferences", auth(http.HandlerFunc(prefHandler.Set)))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.ServeWS(hub, cfg.JWTSecret, newEngine, prefService, logger))

	// Start server with CORS
	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	logger.Info("starting server", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, middleware.CORS(mux)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
