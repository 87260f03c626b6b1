package scoreintent

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
	"referral-workers/internal/common/validation"
	"referral-workers/internal/engine/intent"
	"referral-workers/internal/engine/trigger"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

const TaskType = "score-buyer-intent"

// MatchSubmitter queues a match for a freshly scored buyer.
type MatchSubmitter interface {
	SubmitAsync(req trigger.Request)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	store        recordstore.Store
	submitter    MatchSubmitter
	now          func() time.Time
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Store         recordstore.Store
	Submitter     MatchSubmitter
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
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
		store:        opts.Store,
		submitter:    opts.Submitter,
		now:          time.Now,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Scoring buyer intent", map[string]interface{}{
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
	if input.BuyerState != "" && !validation.ValidateStateCode(input.BuyerState) {
		return nil, errors.NewValidationError(fmt.Sprintf("buyerState %q is not a two-letter state code", input.BuyerState))
	}
	if input.Flow == "" {
		input.Flow = FlowBackfill
	}
	return &input, nil
}

// Execute scores the buyer, optionally persists the score and queues a match.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	base := intent.BaseBackfill
	if input.Flow == FlowUpgrade {
		base = intent.BaseUpgrade
	}
	result := intent.Score(base, input.OrderType, input.BudgetRange, input.Notes)

	output := &Output{
		IntentScore:          result.Score,
		IntentClassification: result.Classification,
	}

	if h.config.PersistScore && h.store != nil {
		persisted, err := h.persist(ctx, input.BuyerID, result)
		if err != nil {
			return nil, err
		}
		output.ScorePersisted = persisted
	}

	if h.config.AutoTrigger && h.submitter != nil && input.BuyerState != "" {
		h.submitter.SubmitAsync(trigger.Request{
			BuyerID:              input.BuyerID,
			BuyerState:           models.NormalizeState(input.BuyerState),
			BuyerName:            input.BuyerName,
			BuyerEmail:           input.BuyerEmail,
			BuyerPhone:           input.BuyerPhone,
			OrderType:            input.OrderType,
			BudgetRange:          input.BudgetRange,
			IntentScore:          result.Score,
			IntentClassification: result.Classification,
			Notes:                input.Notes,
		})
		output.MatchSubmitted = true
	}

	h.logger.Info("Buyer intent scored", map[string]interface{}{
		"buyerId":        input.BuyerID,
		"score":          result.Score,
		"classification": result.Classification,
		"matchSubmitted": output.MatchSubmitted,
	})
	return output, nil
}

// persist reports false when the buyer has no record yet.
func (h *Handler) persist(ctx context.Context, buyerID string, result intent.Result) (bool, error) {
	_, err := h.store.Update(ctx, models.TableBuyers, buyerID, map[string]interface{}{
		"intentScore":          result.Score,
		"intentClassification": result.Classification,
		"updatedAt":            h.now().UTC().Format(time.RFC3339),
	})
	if errors.IsCode(err, errors.ErrCodeResourceNotFound) {
		h.logger.Warn("Buyer record not found, score not persisted", map[string]interface{}{
			"buyerId": buyerID,
		})
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
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
		cfg.AutoTrigger = appConfig.Referral.AutoTriggerOnScore
	}
	return cfg
}
