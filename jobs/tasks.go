package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/authority/internal/rights"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRightsMigrate rewrites stored rights to another catalog version.
	TaskRightsMigrate = "authority:rights-migrate"
)

// ErrMigrationPending is returned when a migration is already queued.
var ErrMigrationPending = errors.New("jobs: rights migration already pending")

// RightsMigratePayload names the target catalog version.
type RightsMigratePayload struct {
	To          int   `json:"to"`
	RequestedBy int64 `json:"requested_by,omitempty"`
}

// NewRightsMigrateTask builds a migration task. The fixed task id keeps at
// most one migration queued or running whatever its target. It is never
// retried: a second run would remap masks already in the target layout.
// A failed run stays archived under that id until the next enqueue
// removes it.
func NewRightsMigrateTask(payload RightsMigratePayload) (*asynq.Task, error) {
	if !rights.Version(payload.To).Supported() {
		return nil, rights.ErrUnsupportedVersion
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRightsMigrate, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.TaskID(TaskRightsMigrate),
		asynq.Timeout(10*time.Minute),
	), nil
}
