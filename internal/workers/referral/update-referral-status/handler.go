package updatereferralstatus

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
	"referral-workers/internal/engine/lifecycle"
	"referral-workers/internal/models"
)

const TaskType = "update-referral-status"

// Progressor is the supplier side of the referral lifecycle plus
// commission settlement.
type Progressor interface {
	Transition(ctx context.Context, actor lifecycle.Actor, req lifecycle.TransitionRequest) (*models.Referral, error)
	MarkCommissionPaid(ctx context.Context, actor lifecycle.Actor, referralID string) (*models.Referral, error)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	progressor   Progressor
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Progressor    Progressor
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Progressor == nil {
		return nil, fmt.Errorf("%s requires a progressor", TaskType)
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
		progressor:   opts.Progressor,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing referral status update", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(ctx, client, job, err, startTime)
		return
	}

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

	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		return nil, errors.NewValidationError("failed to decode job variables: " + err.Error())
	}
	if input.Action == "" {
		input.Action = ActionTransition
	}
	if input.Action == ActionTransition && input.Status == "" {
		return nil, errors.NewValidationError("status is required for a transition")
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	actor := lifecycle.Actor{Role: lifecycle.Role(input.ActorRole), ID: input.ActorID}

	var (
		ref *models.Referral
		err error
	)
	switch input.Action {
	case ActionMarkCommissionPaid:
		ref, err = h.progressor.MarkCommissionPaid(ctx, actor, input.ReferralID)
	case ActionTransition, "":
		ref, err = h.progressor.Transition(ctx, actor, lifecycle.TransitionRequest{
			ReferralID: input.ReferralID,
			To:         models.ReferralStatus(input.Status),
			SaleAmount: input.SaleAmount,
			Notes:      input.Notes,
		})
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown action %q", input.Action))
	}
	if err != nil {
		return nil, err
	}

	return &Output{
		ReferralID:     ref.ID,
		ReferralStatus: string(ref.Status),
		Closed:         ref.Status.Terminal(),
		SaleAmount:     ref.SaleAmount,
		CommissionDue:  ref.CommissionDue,
		CommissionPaid: ref.CommissionPaid,
	}, nil
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
