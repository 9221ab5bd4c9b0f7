package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/authority/internal/authority"
	jobmetrics "github.com/odyssey-erp/authority/internal/jobs"
	"github.com/odyssey-erp/authority/internal/rights"
)

// Migrator rewrites stored rights.
type Migrator interface {
	Migrate(ctx context.Context, to rights.Version) (authority.MigrationReport, error)
}

// Notifier tells other processes that cached administrators are stale.
type Notifier interface {
	Publish(ctx context.Context, channel, reason string) error
}

// RightsMigrateJob runs rights migrations queued by administrators.
type RightsMigrateJob struct {
	Migrator Migrator
	Notifier Notifier
	Channel  string
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewRightsMigrateJob initialises the migration handler.
func NewRightsMigrateJob(migrator Migrator, notifier Notifier, channel string, logger *slog.Logger, metrics *jobmetrics.Metrics) *RightsMigrateJob {
	return &RightsMigrateJob{Migrator: migrator, Notifier: notifier, Channel: channel, Logger: logger, Metrics: metrics}
}

// Handle executes one migration.
func (j *RightsMigrateJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Migrator == nil {
		return errors.New("rights migrate: handler not configured")
	}
	var payload RightsMigratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("rights migrate: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskRightsMigrate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("to", payload.To), slog.Int64("requested_by", payload.RequestedBy))
	logger.Info("starting rights migration")
	start := time.Now()

	report, err := j.Migrator.Migrate(ctx, rights.Version(payload.To))
	if report.To != 0 {
		j.notify(ctx, logger)
	}
	if err != nil {
		for _, failure := range report.Failed {
			logger.Error("record kept old rights",
				slog.Int64("id", failure.ID),
				slog.String("user", failure.Username),
				slog.Any("error", failure.Err),
			)
		}
		logger.Error("rights migration failed", slog.Any("error", err))
		return fmt.Errorf("rights migrate: %w: %w", err, asynq.SkipRetry)
	}

	logger.Info("completed rights migration",
		slog.Int("from", int(report.From)),
		slog.Int("migrated", report.Migrated),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *RightsMigrateJob) notify(ctx context.Context, logger *slog.Logger) {
	if j.Notifier == nil || j.Channel == "" {
		return
	}
	if err := j.Notifier.Publish(ctx, j.Channel, TaskRightsMigrate); err != nil {
		logger.Warn("publish invalidation", slog.Any("error", err))
	}
}

func (j *RightsMigrateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
