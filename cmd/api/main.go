package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lobbysim/eventpipe/internal/broker"
	"github.com/lobbysim/eventpipe/internal/config"
	"github.com/lobbysim/eventpipe/internal/httpserver"
	"github.com/lobbysim/eventpipe/internal/store"
	"github.com/lobbysim/eventpipe/internal/upstream"
)

// main boots the ingress: config → archive → broker → upstreams → HTTP
// server. The archive, broker, and upstream services are all optional;
// the pipeline acknowledges batches either way.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}

	deps := httpserver.Deps{Logger: logger}

	if cfg.DBURL != "" {
		db, err := store.NewPostgresStore(cfg.DBURL)
		if err != nil {
			logger.Error("postgres connect failed", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()

		// Ensure required tables/indexes exist so `docker compose up --build` is enough.
		if err := db.EnsureSchema(); err != nil {
			logger.Error("schema setup failed", "error", err.Error())
			os.Exit(1)
		}
		deps.Store = db
	} else {
		logger.Warn("DB_URL not set, running without event archive")
	}

	if cfg.RedisAddr != "" {
		// Best-effort, retry-free connect: a broker that is down at
		// startup leaves the ingress in accept-and-acknowledge mode.
		stream, err := broker.NewRedisStream(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.BrokerStream)
		if err != nil {
			logger.Warn("broker unavailable, events will be acknowledged but not published",
				"error", err.Error())
		} else {
			defer stream.Close()
			deps.Broker = stream
		}
	} else {
		logger.Warn("REDIS_ADDR not set, running without broker")
	}

	upstreamClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.DialogueURL != "" {
		deps.Dialogue = upstream.NewHTTPDialogue(upstreamClient, cfg.DialogueURL)
	}
	if cfg.SpeechURL != "" {
		deps.Speech = upstream.NewHTTPSpeech(upstreamClient, cfg.SpeechURL)
	}

	router := httpserver.NewRouter(cfg, deps)

	logger.Info("server started", "port", cfg.HTTPPort)
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		logger.Error("server stopped", "error", err.Error())
		os.Exit(1)
	}
}
