package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel-guard/internal/bot"
	"sentinel-guard/internal/config"
	"sentinel-guard/internal/detection"
	"sentinel-guard/internal/metrics"
	"sentinel-guard/internal/modules/antiphishing"
	"sentinel-guard/internal/modules/audit"
	"sentinel-guard/internal/regexsafe"
	"sentinel-guard/internal/storage"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	m := metrics.New()
	patterns := regexsafe.NewCache(logger)

	deps := detection.Deps{
		Blocklist: store,
		Registry:  store,
		Patterns:  patterns,
		Logger:    logger,
		Metrics:   m,
	}
	scam := cfg.Detection.Scam
	if scam.UseExternalAPI && scam.ExternalAPIURL != "" {
		timeout := time.Duration(scam.ExternalTimeoutMS) * time.Millisecond
		deps.Reputation = antiphishing.NewHTTPReputation(scam.ExternalAPIURL, timeout, scam.ExternalRatePerSec, logger).WithMetrics(m)
	}
	if scam.CheckDomainAge {
		deps.DomainAge = antiphishing.NewWhoisAge(time.Duration(scam.WhoisTimeoutMS)*time.Millisecond, logger)
	}
	engine := detection.New(cfg.Detection, deps)

	auditLogger := audit.NewLogger(store, logger, m, audit.Options{
		QueueSize:    cfg.Audit.QueueSize,
		ForgiveAfter: time.Duration(cfg.Actions.ForgiveAfterHours) * time.Hour,
		StoreContent: cfg.Audit.StoreContent,
	})

	botSvc, err := bot.New(cfg, logger, store, auditLogger, engine)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.String("storage", cfg.Storage.Driver), zap.String("mode", cfg.Mode), zap.String("preset", cfg.RulePreset))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go runRetention(ctx, store, cfg.RetentionDays, logger)

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := store.Ping(r.Context()); err != nil {
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if cfg.Health.Metrics {
			mux.Handle("/metrics", m.Handler())
		}
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	botSvc.Close()
	auditLogger.Close()
}

// runRetention purges logs past the retention window once shortly after
// startup and then daily.
func runRetention(ctx context.Context, store *storage.Store, retentionDays int, logger *zap.Logger) {
	if retentionDays <= 0 {
		return
	}
	timer := time.NewTimer(30 * time.Second)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		removed, err := store.PurgeExpired(sweepCtx, retentionDays)
		cancel()
		if err != nil {
			logger.Warn("retention sweep failed", zap.Error(err))
		} else {
			logger.Info("retention sweep", zap.Int64("removed", removed), zap.Int("retention_days", retentionDays))
		}
		timer.Reset(24 * time.Hour)
	}
}
