package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pongarena/backend/internal/auth"
	"github.com/pongarena/backend/internal/config"
	"github.com/pongarena/backend/internal/httpapi"
	"github.com/pongarena/backend/internal/hub"
	"github.com/pongarena/backend/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	logger, err := newLogger(cfg.Development)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	var sink store.ResultSink = store.NopSink{}
	if cfg.DatabaseDSN != "" {
		db, err := store.Open(cfg.DatabaseDSN, nil, logger.Named("store"))
		if err != nil {
			logger.Fatal("open result store", zap.Error(err))
		}
		sink = db
	} else {
		logger.Warn("no DATABASE_DSN configured, match results will not be persisted")
	}

	var verifier auth.Verifier
	if cfg.AuthEndpoint != "" {
		verifier = auth.NewHTTPVerifier(cfg.AuthEndpoint)
	} else {
		logger.Warn("no AUTH_ENDPOINT configured, tokens cannot be verified")
	}

	ctx := context.Background()
	h := hub.NewHub(ctx, hub.Opts{
		TickPeriod: cfg.TickPeriod,
		Verifier:   verifier,
		Sink:       sink,
		Log:        logger.Named("game"),
	})

	handler := httpapi.SetupRoutes(h, logger.Named("ws"))

	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
