package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lifehub/internal/chat"
	"lifehub/internal/config"
	"lifehub/internal/db"
	"lifehub/internal/logging"
	"lifehub/internal/media"
	"lifehub/internal/middleware"
	"lifehub/internal/user"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // best-effort flush

	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connect to postgres", zap.Error(err))
	}
	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}
	logger.Info("database schema ready")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("connect to redis", zap.Error(err))
	}

	mediaStore, err := media.NewStore(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		logger.Fatal("init media store", zap.Error(err))
	}

	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	metrics := chat.NewMetrics(nil)
	chatRepo := chat.NewRepository(database.Conn)
	cipher := chat.NewCipher(cfg.EncryptionSecret)
	hub := chat.NewHub(redisClient, logger, metrics)
	chatService := chat.NewService(chatRepo, cipher, hub, logger, metrics)
	chatHandler := chat.NewHandler(hub, chatService, mediaStore, cfg.Media.MaxUploadBytes, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	go hub.SubscribeToRedis(ctx)

	authMiddleware := middleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// public
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle(cfg.Media.BaseURL+"/*", http.StripPrefix(cfg.Media.BaseURL+"/",
		http.FileServer(http.Dir(mediaStore.Dir()))))

	// authenticated
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		chatHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("server starting", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
}
