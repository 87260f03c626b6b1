// Package app assembles the referral engine from configuration. Both the
// worker manager and the operator CLI build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"referral-workers/internal/common/aws"
	"referral-workers/internal/common/config"
	"referral-workers/internal/common/database"
	"referral-workers/internal/common/http"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/observability"
	"referral-workers/internal/engine/capacity"
	"referral-workers/internal/engine/lifecycle"
	"referral-workers/internal/engine/matching"
	"referral-workers/internal/engine/notify"
	"referral-workers/internal/engine/trigger"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

// App holds the wired engine components.
type App struct {
	Config   *config.Config
	Store    recordstore.Store
	Ledger   *capacity.Ledger
	Journal  capacity.Journal
	Machine  *lifecycle.Machine
	Selector *matching.Selector
	Trigger  *trigger.Trigger
	Sweeper  *capacity.Sweeper

	queue   *notify.Queue
	pingers map[string]func(context.Context) error
	closers []func() error
	zap     *zap.Logger
	logger  logger.Logger
}

// Options tune Build for the calling binary.
type Options struct {
	Observability *observability.Observability
	// Notifier replaces the configured channels, e.g. a LogDispatcher for the CLI.
	Notifier notify.Dispatcher
	// ConnectAttempts bounds the backoff loop around each backing service.
	ConnectAttempts int
}

// Build connects the configured record store and journal and wires the engine.
func Build(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, opts Options) (*App, error) {
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 1
	}
	a := &App{
		Config:  cfg,
		pingers: map[string]func(context.Context) error{},
		zap:     zapLog,
		logger:  logger.NewZapAdapter(zapLog),
	}

	store, err := a.openStore(ctx, opts.ConnectAttempts)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = recordstore.Instrument(store, config.GetDuration(cfg.RecordStore.Timeout))

	a.Journal, err = a.openJournal(ctx, opts.ConnectAttempts)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	dispatcher := opts.Notifier
	if dispatcher == nil {
		dispatcher, err = a.notifier(ctx)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	a.queue = notify.NewQueue(dispatcher, cfg.Notifications.QueueSize, 0, a.logger)

	a.Ledger = capacity.NewLedger(a.Store, models.SupplierDefaults{
		MaxActiveReferrals: cfg.Referral.DefaultMaxActive,
		PerformanceScore:   cfg.Referral.DefaultPerformance,
	}, a.logger)
	a.Machine = lifecycle.NewMachine(a.Store, a.Ledger, a.Journal, a.queue, cfg.Referral.CommissionRate, a.logger)
	a.Selector = matching.NewSelector(a.Store, a.Ledger, a.logger)
	a.Trigger = trigger.New(a.Store, a.Selector, a.Machine, a.logger)
	a.Sweeper = capacity.NewSweeper(a.Ledger, a.Journal, a.Store,
		config.GetDuration(cfg.Capacity.JournalGracePeriod), opts.Observability, a.logger)

	return a, nil
}

func (a *App) openStore(ctx context.Context, attempts int) (recordstore.Store, error) {
	cfg := a.Config
	switch cfg.RecordStore.Backend {
	case config.BackendPostgres:
		var pg *database.PostgresClient
		err := RetryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				_ = pg.Close()
				return err
			}
			return nil
		}, attempts, 2*time.Second, a.zap, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		a.pingers["postgres"] = pg.Ping
		if err := pg.Migrate(ctx, recordstore.Schema...); err != nil {
			return nil, fmt.Errorf("record store migration: %w", err)
		}
		return recordstore.NewPostgresStore(pg.DB), nil

	case config.BackendElasticsearch:
		var es *database.ElasticsearchClient
		err := RetryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, attempts, 2*time.Second, a.zap, "Elasticsearch connection")
		if err != nil {
			return nil, err
		}
		a.pingers["elasticsearch"] = es.Ping
		return recordstore.NewElasticsearchStore(es.Client, cfg.RecordStore.IndexPrefix), nil

	case config.BackendMemory:
		a.zap.Warn("Using in-memory record store; data is lost on restart")
		return recordstore.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("record_store.backend %q is not supported", cfg.RecordStore.Backend)
}

func (a *App) openJournal(ctx context.Context, attempts int) (capacity.Journal, error) {
	if !a.Config.Capacity.JournalEnabled {
		a.zap.Info("Reservation journal disabled")
		return capacity.NopJournal{}, nil
	}

	var rc *database.RedisClient
	err := RetryWithBackoff(func() error {
		var err error
		rc, err = database.NewRedis(a.Config.Database.Redis)
		if err != nil {
			return err
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return err
		}
		return nil
	}, attempts, 2*time.Second, a.zap, "Redis connection")
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rc.Close)
	a.pingers["redis"] = rc.Ping
	return capacity.NewRedisJournal(rc.Client, capacity.DefaultJournalKey), nil
}

func (a *App) notifier(ctx context.Context) (notify.Dispatcher, error) {
	n := a.Config.Notifications
	var channels []notify.Channel

	if n.Chat.Enabled {
		client := http.NewClient(config.GetDuration(n.Chat.Timeout))
		channels = append(channels, notify.NewChatChannel(client, n.Chat.WebhookURL, a.Config.Referral.AdminConsoleURL))
	}

	if n.Email.Enabled || n.SMS.Enabled {
		awsCfg, err := aws.LoadConfig(ctx, n.AWS.Region)
		if err != nil {
			return nil, err
		}
		if n.Email.Enabled {
			channels = append(channels, notify.NewEmailChannel(aws.NewSESClient(awsCfg, n.Email.FromEmail), n.Email.AdminTo))
		}
		if n.SMS.Enabled {
			channels = append(channels, notify.NewSMSChannel(aws.NewSNSClient(awsCfg), n.SMS.AdminNumbers))
		}
	}

	if len(channels) == 0 {
		a.zap.Info("No notification channel enabled, logging intents")
		return notify.LogDispatcher{Logger: a.logger}, nil
	}
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	a.zap.Info("Notification channels enabled", zap.Strings("channels", names))
	return notify.NewMulti(a.logger, channels...), nil
}

// Ready pings every backing service.
func (a *App) Ready(ctx context.Context) error {
	for name, ping := range a.pingers {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Close drains queued notifications and closes connections.
func (a *App) Close(ctx context.Context) {
	if a.queue != nil {
		if err := a.queue.Close(ctx); err != nil {
			a.zap.Warn("Notification queue did not drain", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.zap.Warn("Close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// RetryWithBackoff retries operation with exponential backoff.
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
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
