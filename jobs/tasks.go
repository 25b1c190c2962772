package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/portagency/pdadesk/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskActivityRecord persists one activity log entry.
	TaskActivityRecord = "activity:record"
	// TaskActivityPrune deletes activity entries past retention.
	TaskActivityPrune = "activity:prune"
)

// ActivityPrunePayload configures a retention sweep.
type ActivityPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// Retention returns the sweep window, defaulting to 180 days.
func (p ActivityPrunePayload) Retention() time.Duration {
	days := p.RetentionDays
	if days <= 0 {
		days = 180
	}
	return time.Duration(days) * 24 * time.Hour
}

// NewActivityRecordTask wraps an activity entry in a task.
func NewActivityRecordTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityRecord, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewActivityPruneTask builds the retention sweep task.
func NewActivityPruneTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(ActivityPrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityPrune, data, asynq.Queue(QueueDefault)), nil
}
