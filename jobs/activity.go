package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/portagency/pdadesk/internal/audit"
	jobmetrics "github.com/portagency/pdadesk/internal/jobs"
)

// ActivityStore is the part of the activity log service the worker needs.
type ActivityStore interface {
	Record(ctx context.Context, entry audit.Entry) error
	Prune(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// KeySweeper drops stale idempotency keys.
type KeySweeper interface {
	Sweep(ctx context.Context, before time.Time) (int64, error)
}

// idempotencyKeyTTL bounds how long a replayed save is recognised.
const idempotencyKeyTTL = 7 * 24 * time.Hour

// ActivityJob persists queued activity entries and sweeps old ones.
type ActivityJob struct {
	Store   ActivityStore
	Keys    KeySweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewActivityJob wires dependencies for the activity handlers.
func NewActivityJob(store ActivityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *ActivityJob {
	return &ActivityJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handlers returns the task registrations served by the job.
func (j *ActivityJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskActivityRecord, Handler: j.HandleRecord},
		{Type: TaskActivityPrune, Handler: j.HandlePrune},
	}
}

// HandleRecord writes one entry. Undecodable payloads are not retried.
func (j *ActivityJob) HandleRecord(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("activity record: handler not configured")
	}
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return fmt.Errorf("activity record: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskActivityRecord)
	err := j.Store.Record(ctx, entry)
	if err != nil {
		j.logger().Error("record activity",
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err))
	}
	return tracker.End(err)
}

// HandlePrune deletes entries older than the payload's retention.
func (j *ActivityJob) HandlePrune(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("activity prune: handler not configured")
	}
	var payload ActivityPrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("activity prune: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.Metrics.Track(TaskActivityPrune)
	removed, err := j.Store.Prune(ctx, j.now(), payload.Retention())
	if err != nil {
		j.logger().Error("prune activity", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddPruned(removed)
	j.logger().Info("activity pruned", slog.Int64("removed", removed))
	if j.Keys != nil {
		swept, err := j.Keys.Sweep(ctx, j.now().Add(-idempotencyKeyTTL))
		if err != nil {
			j.logger().Warn("sweep idempotency keys", slog.Any("error", err))
		} else {
			j.logger().Info("idempotency keys swept", slog.Int64("removed", swept))
		}
	}
	return tracker.End(nil)
}

func (j *ActivityJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *ActivityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
