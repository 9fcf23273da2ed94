package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notify-engine/internal/channels"
	"notify-engine/internal/common/config"
	"notify-engine/internal/common/database"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/engine"
	"notify-engine/internal/engine/cooldown"
	"notify-engine/internal/engine/dispatch"
	"notify-engine/internal/engine/escalate"
	"notify-engine/internal/engine/resolver"
	"notify-engine/internal/engine/scan"
	"notify-engine/internal/models"
	"notify-engine/internal/scheduler"
	"notify-engine/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification dispatch engine...",
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional) ---
	var history *store.HistoryIndexer
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		history = store.NewHistoryIndexer(esClient.Client, cfg.Database.Elasticsearch.HistoryIndex, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Stores ---
	notifications := store.NewPostgresNotificationStore(pg.DB)
	directory := store.NewPostgresRecipientDirectory(pg.DB)

	// --- Channel adapters ---
	registry := channels.NewRegistry()
	if cfg.Channels.InApp.Enabled {
		registry.Register(channels.NewInAppSender(rdb.Client, cfg.Channels.InApp.TopicPrefix, log))
	}
	if cfg.Channels.Email.Enabled {
		emailSender, err := channels.NewEmailSender(ctx, cfg.Channels.AWS.Region, cfg.Channels.Email.FromEmail, log)
		if err != nil {
			zapLog.Fatal("email sender init failed", zap.Error(err))
		}
		registry.Register(emailSender)
	}
	if cfg.Channels.SMS.Enabled {
		smsSender, err := channels.NewSMSSender(ctx, cfg.Channels.AWS.Region, cfg.Channels.SMS.SenderID, log)
		if err != nil {
			zapLog.Fatal("sms sender init failed", zap.Error(err))
		}
		registry.Register(smsSender)
	}

	// --- Pipeline components ---
	tracker := cooldown.New(cfg.Engine.CooldownCritical, cfg.Engine.CooldownDefault)
	escalator := escalate.New(notifications, cfg.Engine.EscalateUnreadThreshold, cfg.Engine.EscalateAfter, log)
	res := resolver.New(directory, log)
	eng := engine.New(directory, notifications, res, tracker, escalator,
		models.ParseSeverity(cfg.Engine.SMSSeverityThreshold), log)

	status := dispatch.NewBatchStatus(cfg.Engine.RateLimitPerMinute)
	dispatcher := dispatch.New(notifications, directory, registry, status, history, dispatch.Options{
		PageSize:        cfg.Engine.PageSize,
		WorkerPoolSize:  cfg.Engine.WorkerPoolSize,
		MaxRetries:      cfg.Engine.MaxRetries,
		RetryBaseDelay:  cfg.Engine.RetryBaseDelay,
		RescheduleDelay: cfg.Engine.RescheduleDelay,
		SendTimeout:     cfg.Engine.SendTimeout,
	}, log)

	scanner := scan.New(
		scan.NewPostgresInvoiceSource(pg.DB),
		scan.NewPostgresAgreementSource(pg.DB),
		eng,
		scan.Policy{
			ReminderDays:    cfg.Scan.ReminderDays,
			OverdueHighDays: cfg.Scan.OverdueHigh,
			OverdueCritDays: cfg.Scan.OverdueCrit,
		},
		log,
	)

	// --- Scheduler ---
	sched, err := scheduler.New(cfg.Scheduler.Timezone, log)
	if err != nil {
		zapLog.Fatal("scheduler init failed", zap.Error(err))
	}

	jobs := []scheduler.Job{
		{Name: "dispatch-cycle", Spec: cfg.Scheduler.DispatchEvery, Run: func(ctx context.Context) error {
			_, err := dispatcher.RunCycle(ctx)
			return err
		}},
		{Name: "deadline-scan", Spec: cfg.Scheduler.DailyScanCron, Run: scanner.Run},
		{Name: "sync-scan", Spec: cfg.Scheduler.SyncScanEvery, Run: scanner.Run},
		{Name: "escalation-sweep", Spec: cfg.Scheduler.EscalationEvery, Run: func(ctx context.Context) error {
			_, err := escalator.Sweep(ctx)
			return err
		}},
		{Name: "cooldown-reset", Spec: cfg.Scheduler.CooldownResetCron, Run: func(ctx context.Context) error {
			tracker.ResetAll()
			return nil
		}},
		{Name: "batch-status-cleanup", Spec: cfg.Scheduler.CleanupEvery, Run: func(ctx context.Context) error {
			status.CleanupStale(time.Hour)
			return nil
		}},
	}
	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			zapLog.Fatal("job registration failed", zap.Error(err), zap.String("job", job.Name))
		}
	}
	sched.Start()

	// --- Health & Metrics Server ---
	if cfg.Metrics.Enabled {
		go func() {
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "healthy",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.Handle("/metrics", promhttp.Handler())
			zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	sched.Stop()
	zapLog.Info("Notification dispatch engine stopped gracefully")
}
