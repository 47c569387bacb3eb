package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/linkeeper/linkeeper/bot"
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

	token := getEnv("TELEGRAM_BOT_TOKEN", "")
	if token == "" {
		logger.Error("TELEGRAM_BOT_TOKEN environment variable is required")
		os.Exit(1)
	}

	apiURL := getEnv("LINKEEPER_API_URL", "http://localhost:8080")
	apiKey := getEnv("API_KEY", "")
	if apiKey == "" {
		logger.Error("API_KEY environment variable is required")
		os.Exit(1)
	}

	telegram, err := bot.NewTelegram(token)
	if err != nil {
		logger.Error("failed to create Telegram client", "error", err)
		os.Exit(1)
	}

	saver, err := bot.NewAPIClient(apiURL, apiKey)
	if err != nil {
		logger.Error("failed to create API client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("bot starting", "api_url", apiURL)

	b := bot.New(telegram, telegram, saver)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("bot stopped")
}
