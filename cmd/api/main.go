package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	linkeeper "github.com/linkeeper/linkeeper"
	"github.com/linkeeper/linkeeper/api"
	"github.com/linkeeper/linkeeper/auth"
	"github.com/linkeeper/linkeeper/db"
	"github.com/linkeeper/linkeeper/models"
	"github.com/linkeeper/linkeeper/storage"
	"github.com/linkeeper/linkeeper/youtube"
)

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// A local .env is a convenience; absence is fine in production.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("link service initializing")

	defaultPort := getEnv("PORT", "8080")

	port := flag.String("port", defaultPort, "Server port")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	flag.Parse()

	// PostgreSQL (required).
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "linkeeper")
	dbPassword := getEnv("DB_PASSWORD", "linkeeper_dev_pass")
	dbName := getEnv("DB_NAME", "linkeeper")

	database, err := db.New(db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	})
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	// Object storage (optional; without it links save without images).
	var (
		store    *storage.Store
		archiver *linkeeper.Archiver
		resolver linkeeper.ImageResolver
	)
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		store, err = storage.New(context.Background(), storage.Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
		})
		if err != nil {
			logger.Error("failed to initialize object storage", "error", err)
			os.Exit(1)
		}
		archiver = linkeeper.NewArchiver(store)
		resolver = store
		logger.Info("image archiving enabled", "bucket", bucket)
	} else {
		logger.Warn("S3_BUCKET not set, image archiving disabled")
	}

	// Platform fetchers.
	platforms := map[models.Source]linkeeper.PlatformFetcher{}
	if ytKey := getEnv("YOUTUBE_API_KEY", ""); ytKey != "" {
		platforms[models.SourceYouTube] = youtube.NewClient(ytKey)
		logger.Info("YouTube metadata enabled")
	} else {
		logger.Warn("YOUTUBE_API_KEY not set, YouTube links fall back to page fetch")
	}

	service := linkeeper.NewService(database, linkeeper.NewFetcher(archiver), archiver, platforms, resolver)

	// Google sign-in (optional; API-key auth still works without it).
	var (
		sessions *auth.JWTManager
		google   *auth.Google
	)
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		sessions, err = auth.NewJWTManager(secret)
		if err != nil {
			logger.Error("failed to initialize session manager", "error", err)
			os.Exit(1)
		}
		if clientID := getEnv("GOOGLE_CLIENT_ID", ""); clientID != "" {
			google, err = auth.NewGoogle(auth.GoogleConfig{
				ClientID:     clientID,
				ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
			})
			if err != nil {
				logger.Error("failed to initialize Google sign-in", "error", err)
				os.Exit(1)
			}
			logger.Info("Google sign-in enabled")
		}
	} else {
		logger.Warn("JWT_SECRET not set, session auth disabled")
	}

	apiKey := getEnv("API_KEY", "")
	if apiKey == "" && sessions == nil {
		logger.Error("no authentication configured: set API_KEY or JWT_SECRET")
		os.Exit(1)
	}

	metrics := api.NewCollector("linkeeper")
	metrics.RegisterDBStats(database.DB(), dbName)

	server := api.NewServer(
		api.Config{
			Addr:        ":" + *port,
			APIKey:      apiKey,
			FrontendURL: getEnv("FRONTEND_URL", "/"),
			CORSEnabled: !*disableCORS,
		},
		api.Deps{
			Links:    service,
			Users:    database,
			Counter:  database,
			Sessions: sessions,
			Google:   google,
			Metrics:  metrics,
		},
	)

	// Keep the link count gauge fresh.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			server.UpdateLinkGauge(context.Background())
		}
	}()

	go func() {
		logger.Info("link service starting", "port", *port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
