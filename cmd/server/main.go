package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taskhub/internal/connector"
	"taskhub/internal/diag"
	"taskhub/internal/mqhandler"
	"taskhub/internal/orchestrator"
	"taskhub/internal/repository"
	"taskhub/internal/scheduler"
	"taskhub/internal/settings"
	"taskhub/internal/source"
	syncengine "taskhub/internal/sync"
	"taskhub/internal/workflow"
	"taskhub/pkg/config"
	"taskhub/pkg/db"
	"taskhub/pkg/logger"
	"taskhub/pkg/mq"
	"taskhub/pkg/outbox"
	"taskhub/pkg/redis"
	"taskhub/pkg/util"
)

func main() {
	cfgPath := config.GetEnv("CONFIG_PATH", "config/base.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting taskhub...",
		zap.String("config", cfgPath),
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int("sources", len(cfg.Sources)),
	)

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// MQ publisher
	log.Info("Initializing MQ publisher...")
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	store := repository.NewStore(dbConn, log)
	ring := diag.NewRing(cfg.Diag.RingSize)

	// Outbox: engines stage events durably, the dispatcher delivers
	// them to the broker.
	outboxRepo := outbox.NewRepository(dbConn)
	emitter := outbox.NewEmitter(outboxRepo)
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	defer dispatchCancel()
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go dispatcher.Start(dispatchCtx)
	replayer := outbox.NewReplayer(outboxRepo, publisher)

	// Source adapters
	sourceDefaults := make(map[string]bool, len(cfg.Sources))
	allowEmpty := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sourceDefaults[s.Name] = s.Enabled
		allowEmpty[s.Name] = s.AllowEmpty
	}
	adminSettings := settings.New(rdb, sourceDefaults, log)

	syncEngine := syncengine.NewEngine(store, adminSettings, emitter, allowEmpty, log)
	for _, s := range cfg.Sources {
		conn := connector.NewHTTPConnector(s.Name, s.BaseURL, time.Duration(s.TimeoutSeconds)*time.Second)
		adapter := buildAdapter(s, conn, ring, log)
		if adapter == nil {
			log.Fatal("Unknown source kind",
				zap.String("source", s.Name),
				zap.String("kind", s.Kind),
			)
		}
		syncEngine.Register(adapter)
		log.Info("Registered source adapter",
			zap.String("source", s.Name),
			zap.String("kind", s.Kind),
			zap.Bool("transient", s.Transient),
			zap.Bool("allow_empty", s.AllowEmpty),
		)
	}

	// Workflow engine
	orchClient := orchestrator.NewClient(cfg.Orchestrator.BaseURL, time.Duration(cfg.Orchestrator.TimeoutSeconds)*time.Second)
	deduper := util.NewDeduperWithLogger(rdb, 10*time.Minute, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)
	workflowEngine := workflow.NewEngine(store, store, orchClient, deduper, emitter, log)

	// MQ Consumer for milestone.completed
	log.Info("Initializing MQ consumer for milestone.completed...",
		zap.String("queue", "milestone.completed.q"),
		zap.String("routing_key", "milestone.completed"),
	)
	completedConsumer, err := mq.NewConsumer(cfg.MQ.URL, "milestone.completed.q", "milestone.completed", log)
	if err != nil {
		log.Fatal("Failed to init milestone.completed consumer", zap.Error(err))
	}
	defer completedConsumer.Close()

	completedHandler := mqhandler.NewMilestoneCompletedHandler(workflowEngine, deduper, retryCounter, publisher, log)
	completedConsumer.SetHandler(completedHandler.Handle)

	go func() {
		log.Info("Starting milestone.completed consumer...")
		if err := completedConsumer.StartConsuming(); err != nil {
			log.Fatal("milestone.completed consumer failed", zap.Error(err))
		}
	}()

	// MQ Consumer for task.status.changed
	log.Info("Initializing MQ consumer for task.status.changed...",
		zap.String("queue", "task.status.changed.q"),
		zap.String("routing_key", "task.status.changed"),
	)
	statusConsumer, err := mq.NewConsumer(cfg.MQ.URL, "task.status.changed.q", "task.status.changed", log)
	if err != nil {
		log.Fatal("Failed to init task.status.changed consumer", zap.Error(err))
	}
	defer statusConsumer.Close()

	statusHandler := mqhandler.NewTaskStatusChangedHandler(workflowEngine, log)
	statusConsumer.SetHandler(statusHandler.Handle)

	go func() {
		log.Info("Starting task.status.changed consumer...")
		if err := statusConsumer.StartConsuming(); err != nil {
			log.Fatal("task.status.changed consumer failed", zap.Error(err))
		}
	}()

	// Scheduler
	sched := scheduler.New(log)
	if err := sched.Start(cfg.Scheduler, syncEngine, workflowEngine); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Operational HTTP server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbConn.Ping(ctx); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		if !publisher.IsConnected() || !completedConsumer.IsConnected() {
			http.Error(w, "mq disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/payloads", func(w http.ResponseWriter, r *http.Request) {
		entries := ring.Snapshot()
		if src := r.URL.Query().Get("source"); src != "" {
			entries = ring.SnapshotSource(src)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("/debug/outbox/replay", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sent, err := replayer.ReplayFailed(r.Context(), 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"replayed": sent})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: mux,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("taskhub is fully initialized and running",
		zap.String("http_port", cfg.Server.Port),
		zap.String("sync_spec", cfg.Scheduler.SyncSpec),
		zap.String("evaluate_spec", cfg.Scheduler.EvaluateSpec),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down taskhub gracefully...")

	sched.Stop()
	dispatchCancel()

	log.Info("Stopping MQ consumers...")
	completedConsumer.Close()
	statusConsumer.Close()

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("taskhub shutdown complete")
}

// buildAdapter maps a configured source kind to its adapter. Returns
// nil for an unknown kind.
func buildAdapter(s config.SourceConfig, conn connector.Connector, ring *diag.Ring, log *zap.Logger) source.Adapter {
	switch s.Kind {
	case "tracker":
		return source.NewTrackerAdapter(s.Name, conn, s.Query, ring, s.Transient, log)
	case "board":
		return source.NewBoardAdapter(s.Name, conn, s.Query, ring, s.Transient, log)
	case "calendar":
		return source.NewCalendarAdapter(s.Name, conn, s.Query, ring, log)
	case "crm":
		return source.NewCRMAdapter(s.Name, conn, s.Query, ring, s.Transient, log)
	default:
		return nil
	}
}
