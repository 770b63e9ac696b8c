package main

import (
	"blogapp/auth"
	"blogapp/config"
	"blogapp/handlers"
	"blogapp/metrics"
	"blogapp/middleware"
	"blogapp/storage"
	"blogapp/storage/in_memory"
	"blogapp/storage/persistent"
	"blogapp/storage/persistent_cached"
	"blogapp/utils"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

func CreateStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageMode {
	case config.InMemory:
		return in_memory.CreateInMemoryStorage(), nil
	case config.Mongo:
		return persistent.CreateMongoStorage(ctx, cfg.MongoURI, cfg.MongoDBName, cfg.MongoConnectTimeout)
	case config.MongoWithCache:
		persistentStorage, err := persistent.CreateMongoStorage(ctx, cfg.MongoURI, cfg.MongoDBName, cfg.MongoConnectTimeout)
		if err != nil {
			return nil, err
		}
		return persistent_cached.CreatePersistentStorageCachedWithRedis(persistentStorage, cfg.RedisURL, cfg.CacheTTL), nil
	}
	return nil, fmt.Errorf("invalid 'STORAGE_MODE': %q", cfg.StorageMode)
}

func NewRouter(store storage.Storage, authenticator *auth.Authenticator, cfg *config.Config, registry *prometheus.Registry) http.Handler {
	r := mux.NewRouter()
	handler := &handlers.HTTPHandler{Storage: store}

	// Use only wraps matched routes; 404 and 405 are counted through the
	// router's own handlers.
	recordMetrics := middleware.NewMetricsMiddleware(metrics.NewCollector(registry))
	r.Use(recordMetrics)
	r.NotFoundHandler = recordMetrics(http.NotFoundHandler())
	r.MethodNotAllowedHandler = recordMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	r.HandleFunc("/", handler.HandleRoot).Methods("GET")
	r.HandleFunc("/maintenance/ping", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", metrics.Handler(registry)).Methods("GET")

	// my-posts goes before {postId} so that it is not taken for an id.
	posts := r.PathPrefix("/api/posts").Subrouter()
	posts.HandleFunc("", handler.HandleGetPosts).Methods("GET")
	posts.HandleFunc("/my-posts", authenticator.Require(handler.HandleMyPosts)).Methods("GET")
	posts.HandleFunc("/{postId}", handler.HandleGetPost).Methods("GET")
	posts.HandleFunc("", authenticator.Require(handler.HandleCreatePost)).Methods("POST")
	posts.HandleFunc("/{postId}", authenticator.Require(handler.HandleUpdatePost)).Methods("PUT")
	posts.HandleFunc("/{postId}", authenticator.Require(handler.HandleDeletePost)).Methods("DELETE")

	var h http.Handler = r
	h = middleware.NewCORSMiddleware(cfg.CORSAllowedOrigin)(h)
	h = middleware.NewRecoveryMiddleware()(h)
	h = middleware.NewLoggingMiddleware(slog.Default())(h)
	return h
}

func CreateServer(cfg *config.Config, store storage.Storage) *http.Server {
	authenticator := auth.NewAuthenticator([]byte(cfg.JWTSecret), store)
	return &http.Server{
		Handler:      NewRouter(store, authenticator, cfg, metrics.NewRegistry()),
		Addr:         "0.0.0.0:" + cfg.Port,
		WriteTimeout: cfg.ServerTimeout,
		ReadTimeout:  cfg.ServerTimeout,
	}
}

func serve(cfg *config.Config) error {
	store, err := CreateStorage(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	slog.Info("storage opened", slog.String("mode", string(cfg.StorageMode)))

	srv := CreateServer(cfg, store)
	errs := make(chan error, 1)
	go func() {
		slog.Info("start serving", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err = <-errs:
	case <-stop:
		slog.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
		slog.Error("server shutdown failed", slog.String("error", shutdownErr.Error()))
	}
	if closeErr := store.Close(ctx); closeErr != nil {
		slog.Error("storage close failed", slog.String("error", closeErr.Error()))
	}
	return err
}

// check opens the configured storage, pings it and closes it again.
func check(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.MongoConnectTimeout)
	defer cancel()
	store, err := CreateStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage connection failed: %w", err)
	}
	defer store.Close(ctx)
	if err = store.Ping(ctx); err != nil {
		return fmt.Errorf("storage ping failed: %w", err)
	}
	slog.Info("storage connected successfully", slog.String("mode", string(cfg.StorageMode)))
	return nil
}

func main() {
	utils.SetupDefaultLogger(os.Stdout)
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	switch cfg.AppMode {
	case config.ServerMode:
		err = serve(cfg)
	case config.CheckMode:
		err = check(cfg)
	}
	if err != nil {
		slog.Error("exiting", slog.String("mode", string(cfg.AppMode)), slog.String("error", err.Error()))
		os.Exit(1)
	}
}
