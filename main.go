package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/startuphub/backend/config"
	"github.com/startuphub/backend/logging"
	"github.com/startuphub/backend/matching"
)

const apiVersion = "1.0.0"

// Process-wide settings. main overwrites them from config; tests use the defaults.
var (
	jwtSecret       = []byte("dev_secret_change_me")
	tokenTTL        = 24 * time.Hour
	logger          = logging.NewNop()
	uploadRoot      = "./uploads/founders"
	maxImageBytes   = int64(3 << 20)
	presenceTTL     = 90 * time.Second
	suggestionLimit = matching.DefaultSuggestionLimit
	allowedOrigins  = []string{"http://localhost:5173", "http://localhost:3000"}

	scorer   = matching.NewScorer(matching.DefaultWeights())
	selector = matching.NewSelector(nil)
	ranker   = matching.NewRanker(scorer)
)

func applyConfig(cfg *config.Config, weights matching.Weights, log *logging.Logger) {
	jwtSecret = []byte(cfg.Auth.JWTSecret)
	tokenTTL = cfg.Auth.TokenTTL
	logger = log
	uploadRoot = cfg.Storage.UploadDir
	maxImageBytes = cfg.Storage.MaxImageBytes
	presenceTTL = cfg.Presence.TTL
	suggestionLimit = cfg.Matching.SuggestionLimit
	allowedOrigins = cfg.Server.CORSOrigins

	scorer = matching.NewScorer(weights)
	ranker = matching.NewRanker(scorer)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		logging.New("error").Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level).With("service", "startuphub")
	defer func() { _ = log.Sync() }()
	if !cfg.EnvFileLoaded {
		log.Info("no .env file found, using environment and defaults")
	}

	weights, err := config.LoadWeights(cfg.Matching.WeightsFile)
	if err != nil {
		log.Error("cannot load matching weights", "file", cfg.Matching.WeightsFile, "err", err)
		os.Exit(1)
	}
	applyConfig(cfg, weights, log)

	if err := initDB(cfg.GetDatabaseDSN()); err != nil {
		log.Error("database unavailable", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := os.MkdirAll(uploadRoot, 0o755); err != nil {
		log.Warn("cannot create upload directory", "dir", uploadRoot, "err", err)
	}

	sched, err := newScheduler(db, cfg.Presence.SweepSchedule, cfg.Matching.StatsSchedule)
	if err != nil {
		log.Error("invalid job schedule", "err", err)
		os.Exit(1)
	}
	sched.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting startup.hub backend", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "err", err)
			os.Exit(1)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info("shutdown signal received")

	<-sched.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown completed with error", "err", err)
	} else {
		log.Info("graceful shutdown completed successfully")
	}
}
