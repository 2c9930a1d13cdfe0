package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fermata/cache"
	"fermata/config"
	"fermata/core/auth"
	"fermata/core/moderation"
	"fermata/core/upload"
	"fermata/db"
	"fermata/logger"
	"fermata/model"
	"fermata/repository"
	"fermata/storage"

	"github.com/gorilla/mux"
)

// Start initializes dependencies and runs the HTTP server until a shutdown
// signal arrives.
func Start() {
	cfg := config.Load()
	auth.SetSecret(cfg.JWTSecret)

	store, err := storage.NewMinioStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.Connect(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(&model.Composer{}, &model.Composition{}, &model.Asset{},
		&model.ListComposition{}, &model.UserComposition{}); err != nil {
		logger.Fatal("Failed to migrate models", logger.ErrorField(err))
	}

	// the queue view cache is optional; the service runs without Redis
	var queueCache *cache.QueueCache
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, running without queue cache", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
		queueCache = cache.NewQueueCache(db.RedisClient, cfg.QueueCacheTTL)
	}

	repo := repository.NewGormCompositionRepository(db.DB, store, cfg.SlotExpiry)
	queue := moderation.NewQueue(repo, queueCache, cfg.UndoWindow)
	uploads := upload.NewManager(repo, store, cfg.MaxAssetSize)
	apiHandler := NewAPIHandler(queue, uploads, cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// moderation queue (admin only)
	router.HandleFunc("/api/admin/compositions/pending", apiHandler.AdminMiddleware(apiHandler.GetPendingHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/compositions/pending/ws", apiHandler.AdminMiddleware(apiHandler.QueueSubscriptionHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/compositions/{id}/approval", apiHandler.AdminMiddleware(apiHandler.ApproveOneHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/compositions/approval", apiHandler.AdminMiddleware(apiHandler.ApproveManyHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/undo/{token}", apiHandler.AdminMiddleware(apiHandler.UndoHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/undo/{token}", apiHandler.AdminMiddleware(apiHandler.DismissUndoHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/admin/compositions/{id}/select", apiHandler.AdminMiddleware(apiHandler.SelectHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/compositions/{id}/select", apiHandler.AdminMiddleware(apiHandler.DeselectHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/admin/compositions/selection", apiHandler.AdminMiddleware(apiHandler.ClearSelectionHandler)).Methods(http.MethodDelete)

	// asset upload pipeline
	router.HandleFunc("/api/compositions/{id}/assets/{type}", apiHandler.AuthMiddleware(apiHandler.UploadAssetHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/assets/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteAssetHandler)).Methods(http.MethodDelete)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Server listening", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", logger.ErrorField(err))
	}
	logger.Info("Server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
