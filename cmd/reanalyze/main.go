// Command reanalyze re-runs metadata enrichment over every stored link,
// one at a time. Tags and creation times are preserved; titles,
// descriptions and images are refreshed in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	linkeeper "github.com/linkeeper/linkeeper"
	"github.com/linkeeper/linkeeper/db"
	"github.com/linkeeper/linkeeper/models"
	"github.com/linkeeper/linkeeper/storage"
	"github.com/linkeeper/linkeeper/youtube"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	delay := flag.Duration("delay", 500*time.Millisecond, "Pause between links, to stay polite to remote hosts")
	limit := flag.Int("limit", 0, "Re-analyze at most this many links (0 = all)")
	flag.Parse()

	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	database, err := db.New(db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbHost,
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "linkeeper"),
			getEnv("DB_PASSWORD", "linkeeper_dev_pass"),
			getEnv("DB_NAME", "linkeeper"),
		),
	})
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	ctx := context.Background()

	var (
		archiver *linkeeper.Archiver
		resolver linkeeper.ImageResolver
	)
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		store, err := storage.New(ctx, storage.Config{
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
	}

	platforms := map[models.Source]linkeeper.PlatformFetcher{}
	if ytKey := getEnv("YOUTUBE_API_KEY", ""); ytKey != "" {
		platforms[models.SourceYouTube] = youtube.NewClient(ytKey)
	}

	service := linkeeper.NewService(database, linkeeper.NewFetcher(archiver), archiver, platforms, resolver)

	links, err := database.FindAll(ctx)
	if err != nil {
		logger.Error("failed to list links", "error", err)
		os.Exit(1)
	}
	if *limit > 0 && len(links) > *limit {
		links = links[:*limit]
	}

	logger.Info("re-analyzing links", "count", len(links), "delay", *delay)

	var updated, failed int
	for i, link := range links {
		// Passing no tags keeps whatever the record already carries.
		result, err := service.AddLink(ctx, link.URL, nil)
		if err != nil {
			failed++
			logger.Warn("re-analysis failed", "url", link.URL, "error", err)
		} else {
			updated++
			logger.Info("re-analyzed",
				"url", link.URL,
				"title", result.Link.Metadata.Title,
				"progress", fmt.Sprintf("%d/%d", i+1, len(links)),
			)
		}

		if i < len(links)-1 {
			time.Sleep(*delay)
		}
	}

	logger.Info("re-analysis complete", "updated", updated, "failed", failed)
}
