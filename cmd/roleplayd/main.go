package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Rexmeta/RoleplayBot-sub003/internal/config"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/content"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/emotion"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/httpapi"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/observability"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/realtime"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/session"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/upstream"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/usage"
	"github.com/Rexmeta/RoleplayBot-sub003/internal/users"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewLatencyWindow(256)

	ctx := context.Background()

	contentStore, err := content.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("content store init failed")
	}
	defer contentStore.Close()

	directory, err := users.NewDirectory(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("user directory init failed")
	}
	defer directory.Close()

	usageSink, err := usage.NewSink(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("usage sink init failed")
	}
	defer usageSink.Close()

	registry := session.NewRegistry(cfg.MaxConcurrentSessions, cfg.SessionInactivityTimeout)
	registry.SetCloseHook(func(s *session.Session, reason string) {
		trackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		record := usage.Record{
			SessionID:       s.ID,
			ConversationID:  s.ConversationID,
			UserID:          s.UserID,
			ScenarioID:      s.ScenarioID,
			PersonaID:       s.PersonaID,
			DurationSeconds: int64(time.Since(s.StartedAt).Seconds()),
			UserChars:       s.UserTranscriptChars,
			AIChars:         s.AITranscriptChars,
			Turns:           s.TurnSeq,
			EndReason:       reason,
			EndedAt:         time.Now().UTC(),
		}
		if err := usageSink.Track(trackCtx, record); err != nil {
			log.WithError(err).WithField("session_id", s.ID).Error("usage tracking failed")
		}
		metrics.SessionEvents.WithLabelValues("closed").Inc()
		metrics.ActiveSessions.Set(float64(registry.Size()))
		log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"reason":     reason,
			"turns":      s.TurnSeq,
		}).Info("session closed")
	})

	classifier := emotion.NewModelClassifier(emotion.ModelConfig{
		APIKey:  cfg.EmotionAPIKey,
		BaseURL: cfg.EmotionBaseURL,
		ModelID: cfg.EmotionModelID,
	})

	var orchestrator httpapi.Orchestrator
	connector, err := upstream.NewClient(upstream.Config{
		APIKey:    cfg.RealtimeAPIKey,
		WSBaseURL: cfg.RealtimeWSBaseURL,
		ModelID:   cfg.RealtimeModelID,
	})
	switch {
	case errors.Is(err, upstream.ErrUnavailable):
		// The service still serves health and status endpoints so liveness
		// checks keep working; session creation answers 503.
		log.Warn("REALTIME_API_KEY is not set, voice roleplay is disabled")
	case err != nil:
		log.WithError(err).Fatal("upstream client init failed")
	default:
		orchestrator = realtime.NewOrchestrator(
			registry,
			connector,
			classifier,
			metrics,
			window,
			log,
			realtime.WithGreetingTimings(cfg.GreetingGrace, cfg.GreetingRetryAfter),
			realtime.WithReconnectBase(cfg.ReconnectBase),
			realtime.WithTranscriptCap(cfg.MaxTranscriptChars),
		)
	}

	api := httpapi.New(cfg, registry, orchestrator, contentStore, directory, metrics, window, log)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartSweeper(runCtx, cfg.SweepInterval)

	go func() {
		log.WithField("addr", cfg.BindAddr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info("shutdown complete")
}
