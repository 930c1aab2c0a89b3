package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"utilibill/internal/amqp"
	"utilibill/internal/auth"
	"utilibill/internal/config"
	"utilibill/internal/extract"
	apphttp "utilibill/internal/http"
	applog "utilibill/internal/log"
	"utilibill/internal/payment"
	"utilibill/internal/services"
	"utilibill/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	extractor := extract.New(extract.Config{Pdftotext: cfg.PdftotextPath})
	ingest := services.NewIngestService(extractor, repo)
	consolidate := services.NewConsolidationService(repo, repo)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	checkout := payment.NewStripeProvider(cfg.StripeSecretKey, cfg.FrontendURL)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Users:          repo,
		Aggregates:     repo,
		Ingestor:       ingest,
		Consolidator:   consolidate,
		Checkout:       checkout,
		Publisher:      amqpClient,
		Tokens:         tokens,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting utilibill server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
