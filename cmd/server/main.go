package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/broadcast"
	"github.com/ShashwatSecure/WIBE-CHAT/internal/chat"
	"github.com/ShashwatSecure/WIBE-CHAT/internal/config"
	"github.com/ShashwatSecure/WIBE-CHAT/internal/db"
	"github.com/ShashwatSecure/WIBE-CHAT/internal/fanout"
	myMiddleware "github.com/ShashwatSecure/WIBE-CHAT/internal/middleware"
	"github.com/ShashwatSecure/WIBE-CHAT/internal/presence"
	"github.com/ShashwatSecure/WIBE-CHAT/internal/user"
	"github.com/ShashwatSecure/WIBE-CHAT/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.DatabaseDSN == "" {
		log.Error("DB_DSN is not set")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		log.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	// Platform layer: Postgres and Redis.
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// Fanout backbone and socket hub.
	backbone := fanout.New(redisClient, log)
	hub := ws.NewHub(backbone, log)

	// User feature.
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService, hub)

	// Delivery core.
	chatRepo := chat.NewRepository(database.Conn)
	engine := chat.NewEngine(chatRepo, userRepo, hub, hub, log)
	chatHandler := chat.NewHandler(engine)

	presencePub := presence.NewPublisher(hub, userRepo, log)
	hub.Bind(engine, presencePub)

	// Scheduled broadcasts.
	broadcastRepo := broadcast.NewRepository(database.Conn)
	dispatcher := broadcast.NewDispatcher(broadcastRepo, chatRepo, userRepo, hub, cfg.DispatchInterval, log)
	broadcastHandler := broadcast.NewHandler(broadcastRepo, dispatcher, hub)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := backbone.Run(rootCtx, hub); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("fanout subscription terminated", "error", err)
			stop()
		}
	}()
	go dispatcher.Run(rootCtx)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			ws.ServeWS(hub, w, req)
		})

		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Post("/api/users/block", userHandler.ToggleBlock)
		r.Get("/api/users/unread-counts", userHandler.UnreadCounts)

		r.Get("/api/messages", chatHandler.GetHistory)
		r.Get("/api/messages/conversations", chatHandler.GetConversations)
		r.Delete("/api/messages/{messageId}", chatHandler.DeleteMessage)
		r.Delete("/api/messages", chatHandler.DeleteMany)
		r.Post("/api/messages/mark-as-seen", chatHandler.MarkAsSeen)
		r.Post("/api/messages/unblur", chatHandler.Unblur)

		r.Post("/api/broadcast/send", broadcastHandler.Send)
		r.Get("/api/broadcast/scheduled/{userId}", broadcastHandler.ListScheduled)
		r.Delete("/api/broadcast/scheduled/{broadcastId}", broadcastHandler.Cancel)
		r.Post("/api/broadcast/groups", broadcastHandler.CreateGroup)
		r.Get("/api/broadcast/groups/{userId}", broadcastHandler.ListGroups)
		r.Delete("/api/broadcast/groups/{groupId}", broadcastHandler.DeleteGroup)
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		log.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	log.Info("server exited")
}
