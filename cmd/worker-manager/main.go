package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"referral-workers/internal/app"
	"referral-workers/internal/common/camunda"
	"referral-workers/internal/common/config"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/observability"
	"referral-workers/internal/engine/trigger"

	rc "referral-workers/internal/workers/capacity/reconcile-capacity"
	rr "referral-workers/internal/workers/referral/review-referral"
	si "referral-workers/internal/workers/referral/score-intent"
	tm "referral-workers/internal/workers/referral/trigger-match"
	urs "referral-workers/internal/workers/referral/update-referral-status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.Build(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{cfg.Logging.Output},
		Service:     cfg.App.Name,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("recordStore", cfg.RecordStore.Backend),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Zeebe client with retry ---
	var camundaClient *camunda.Client
	err = app.RetryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Engine ---
	engine, err := app.Build(ctx, cfg, zapLog, app.Options{
		Observability:   obs,
		ConnectAttempts: 15,
	})
	if err != nil {
		zapLog.Fatal("engine wiring failed", zap.Error(err))
	}

	submitter := trigger.NewSubmitter(camundaClient, cfg.Referral.ProfileUpdatedMessage,
		config.GetDuration(cfg.Camunda.RequestTimeout), log)

	// --- Workers ---
	zeebe := camundaClient.GetClient()
	var workers []*camunda.CamundaWorker

	if h, err := si.NewHandler(si.HandlerOptions{
		AppConfig:     cfg,
		Store:         engine.Store,
		Submitter:     submitter,
		Observability: obs,
		Logger:        log,
	}); err != nil {
		zapLog.Fatal("failed to create score-buyer-intent handler", zap.Error(err))
	} else if h.IsEnabled() {
		workers = append(workers, startWorker(zeebe, h.GetTaskType(), h.GetConfig().MaxJobsActive, h.GetConfig().Timeout, h.Handle, zapLog))
	}

	if h, err := tm.NewHandler(tm.HandlerOptions{
		AppConfig:     cfg,
		Matcher:       engine.Trigger,
		Observability: obs,
		Logger:        log,
	}); err != nil {
		zapLog.Fatal("failed to create trigger-referral-match handler", zap.Error(err))
	} else if h.IsEnabled() {
		workers = append(workers, startWorker(zeebe, h.GetTaskType(), h.GetConfig().MaxJobsActive, h.GetConfig().Timeout, h.Handle, zapLog))
	}

	if h, err := rr.NewHandler(rr.HandlerOptions{
		AppConfig:     cfg,
		Reviewer:      engine.Machine,
		Observability: obs,
		Logger:        log,
	}); err != nil {
		zapLog.Fatal("failed to create review-referral handler", zap.Error(err))
	} else if h.IsEnabled() {
		workers = append(workers, startWorker(zeebe, h.GetTaskType(), h.GetConfig().MaxJobsActive, h.GetConfig().Timeout, h.Handle, zapLog))
	}

	if h, err := urs.NewHandler(urs.HandlerOptions{
		AppConfig:     cfg,
		Progressor:    engine.Machine,
		Observability: obs,
		Logger:        log,
	}); err != nil {
		zapLog.Fatal("failed to create update-referral-status handler", zap.Error(err))
	} else if h.IsEnabled() {
		workers = append(workers, startWorker(zeebe, h.GetTaskType(), h.GetConfig().MaxJobsActive, h.GetConfig().Timeout, h.Handle, zapLog))
	}

	if h, err := rc.NewHandler(rc.HandlerOptions{
		AppConfig:     cfg,
		Sweeper:       engine.Sweeper,
		Observability: obs,
		Logger:        log,
	}); err != nil {
		zapLog.Fatal("failed to create reconcile-capacity handler", zap.Error(err))
	} else if h.IsEnabled() {
		workers = append(workers, startWorker(zeebe, h.GetTaskType(), h.GetConfig().MaxJobsActive, h.GetConfig().Timeout, h.Handle, zapLog))
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Reconcile scheduler ---
	sweepDone := closedChan()
	if interval := config.GetDuration(cfg.Capacity.ReconcileInterval); interval > 0 {
		sweepDone = engine.Sweeper.Schedule(ctx, interval)
		zapLog.Info("Capacity reconciliation scheduled", zap.Duration("interval", interval))
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := engine.Ready(checkCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		if err := camundaClient.HealthCheck(checkCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	stop()
	<-sweepDone
	submitter.Wait()
	engine.Close(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, maxJobsActive int, timeout time.Duration, handler camunda.HandlerFunc, log *zap.Logger) *camunda.CamundaWorker {
	return camunda.NewWorker(client, taskType, camunda.WorkerOptions{
		MaxJobsActive: maxJobsActive,
		Timeout:       timeout,
	}, handler, log)
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
