package reconcilecapacity

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"referral-workers/internal/common/config"
	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/metrics"
	"referral-workers/internal/common/observability"
	"referral-workers/internal/engine/capacity"
)

const TaskType = "reconcile-capacity"

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Run(ctx context.Context) (*capacity.Report, error)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	sweeper      Sweeper
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Sweeper       Sweeper
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Sweeper == nil {
		return nil, fmt.Errorf("%s requires a sweeper", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}

	return &Handler{
		config:       workerConfig,
		logger:       log.WithFields(map[string]interface{}{"worker": TaskType}),
		errorHandler: errors.NewErrorHandler(log),
		obs:          opts.Observability,
		sweeper:      opts.Sweeper,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(ctx, client, job, err, startTime)
		return
	}

	h.logger.Info("Running capacity reconciliation", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"reason":             input.Reason,
	})

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(ctx, client, job, err, startTime)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.obs.RecordJob(ctx, TaskType, time.Since(startTime), "completed")
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewValidationError("failed to parse job variables: " + err.Error())
	}
	if err := inputSchema.Validate(variables); err != nil {
		return nil, err
	}

	input := &Input{}
	if reason, ok := variables["reconcileReason"].(string); ok {
		input.Reason = reason
	}
	return input, nil
}

// Execute runs a sweep. A partly failed sweep fails the job; every step of
// the sweep is safe to repeat.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	report, err := h.sweeper.Run(ctx)
	if err != nil {
		return nil, errors.Normalize(err).WithMetadata("reason", input.Reason)
	}

	output := &Output{
		StatusChanges:    len(report.StatusChanges),
		Compensations:    len(report.Compensations),
		ChangedSuppliers: make([]string, 0, len(report.StatusChanges)),
		DurationMs:       report.Duration.Milliseconds(),
	}
	for _, c := range report.StatusChanges {
		output.ChangedSuppliers = append(output.ChangedSuppliers, c.SupplierID)
	}
	return output, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}
	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error, startTime time.Time) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.obs.RecordJob(ctx, TaskType, time.Since(startTime), "failed")
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig != nil {
		if workerCfg, exists := appConfig.Workers[TaskType]; exists {
			cfg.Enabled = workerCfg.Enabled
			if workerCfg.MaxJobsActive > 0 {
				cfg.MaxJobsActive = workerCfg.MaxJobsActive
			}
			if workerCfg.Timeout > 0 {
				cfg.Timeout = config.GetDuration(workerCfg.Timeout)
			}
		}
	}
	return cfg
}
