// main is the entry point for the attendance validation server.
//
// It reads configuration from the environment (and an optional .env),
// opens the SQLite database, registers the HTTP routes, and serves until
// interrupted.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: the composition root
// ────────────────────────────────────────────────────────────────────
// This is the one place where db, handlers and middleware meet. Every
// other package can be tested on its own because none of them import
// each other in a circle.
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

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/Elizabethomito/geocheckin/internal/auth"
	"github.com/Elizabethomito/geocheckin/internal/db"
	"github.com/Elizabethomito/geocheckin/internal/handlers"
	"github.com/Elizabethomito/geocheckin/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(getenv("LOG_LEVEL", "info")),
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)

	// ── Configuration ────────────────────────────────────────────────
	// DATABASE_URL uses modernc.org/sqlite URI parameters:
	//   _pragma=foreign_keys(1)     enforce FK constraints on every connection
	//   _pragma=journal_mode(WAL)   readers don't block writers
	//   _pragma=busy_timeout(5000)  wait up to 5 s instead of SQLITE_BUSY
	dsn := getenv("DATABASE_URL",
		"geocheckin.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	jwtSecret := getenv("JWT_SECRET", "changeme-use-a-real-secret-in-production")
	addr := getenv("ADDR", ":8080")
	frontendURL := getenv("FRONTEND_URL", "http://localhost:5173")

	qrTTL, err := time.ParseDuration(getenv("QR_TTL", auth.DefaultQRTokenTTL.String()))
	if err != nil || qrTTL <= 0 {
		logger.Error("invalid QR_TTL", "value", os.Getenv("QR_TTL"), "err", err)
		os.Exit(1)
	}

	// ── Database ─────────────────────────────────────────────────────
	database, err := db.Open(dsn)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	// ── Handlers ─────────────────────────────────────────────────────
	srv := &handlers.Server{
		DB:          database,
		Secret:      jwtSecret,
		QRTTL:       qrTTL,
		FrontendURL: frontendURL,
		EnableSeed:  getenv("ENABLE_SEED", "true") == "true",
		Logger:      logger,
		Metrics:     handlers.NewMetrics(),
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           middleware.RequestLogger(logger)(middleware.CORS(srv.Routes())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("attendance API listening", "addr", addr, "qr_ttl", qrTTL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("stopped")
}

// getenv returns the value of the named environment variable, or fallback
// if the variable is not set or is empty.
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
