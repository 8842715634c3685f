package dialogue

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a queued turn executed by the worker.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID         uint64 `gorm:"index;not null;index:uniq_job_user_idempo,unique,priority:1"`
	ConversationID string `gorm:"size:26;index;not null"`

	Prompt   string `gorm:"type:text;not null"`
	ImageRef string `gorm:"type:varchar(1024)"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_job_user_idempo,unique,priority:2" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// LogMark is the last interaction id before the first attempt ran;
	// 0 for an empty log, nil until the job first runs.
	LogMark *uint64

	// Filled when succeeded
	ResultInteractionID *uint64 `gorm:"index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "turn_jobs" }
