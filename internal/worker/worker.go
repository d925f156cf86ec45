// Package worker polls the database for due notifications and hands
// them to the orchestrator: scheduled sends whose time has come and
// pending retries whose backoff has elapsed.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/db"
	"github.com/marketfleet/courier/internal/metrics"
	"github.com/marketfleet/courier/internal/notify"
)

// Repository claims due notifications for this worker. Claimed rows
// have their next_retry_at pushed out so concurrent workers and the
// synchronous API path skip them.
type Repository interface {
	ClaimDue(ctx context.Context, limit int, claimFor time.Duration) ([]*db.Notification, error)
}

// Dispatcher redispatches a claimed notification's remaining channels.
// *notify.Orchestrator implements it.
type Dispatcher interface {
	Redispatch(ctx context.Context, n *db.Notification) (*notify.Outcome, error)
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	ClaimFor     time.Duration
}

type Worker struct {
	repo       Repository
	dispatcher Dispatcher
	config     Config
	logger     *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(repo Repository, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.ClaimFor == 0 {
		cfg.ClaimFor = 2 * time.Minute
	}

	return &Worker{
		repo:       repo,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

// Start launches the poll loop in its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight batch to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Info("worker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	notifications, err := w.repo.ClaimDue(ctx, w.config.BatchSize, w.config.ClaimFor)
	if err != nil {
		w.logger.Error("failed to claim due notifications", zap.Error(err))
		return
	}
	metrics.SetWorkerClaimed(len(notifications))
	if len(notifications) == 0 {
		return
	}

	w.logger.Info("claimed due notifications", zap.Int("count", len(notifications)))

	for _, n := range notifications {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, n)
	}
}

func (w *Worker) process(ctx context.Context, n *db.Notification) {
	outcome, err := w.dispatcher.Redispatch(ctx, n)
	if err != nil {
		w.logger.Error("redispatch failed",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("notification processed",
		zap.String("notification_id", n.ID.String()),
		zap.String("status", string(outcome.Notification.Status)),
		zap.Int("retry_count", outcome.Notification.RetryCount),
		zap.Bool("success", outcome.Success),
	)
}
