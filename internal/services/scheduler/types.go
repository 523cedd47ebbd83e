package scheduler

import (
	"context"
	"time"
)

// Job types known to the scheduler
const (
	JobTypeTaskSweep     = "task-sweep"
	JobTypeArtifactPrune = "artifact-prune"
)

// ScheduledJob represents a CRON-based housekeeping job
type ScheduledJob struct {
	ID        string     `json:"id" gorm:"primaryKey"`
	Name      string     `json:"name" gorm:"unique;not null"`
	JobType   string     `json:"job_type" gorm:"not null"`
	Cron      string     `json:"cron" gorm:"not null"` // 6-field, seconds first
	Payload   string     `json:"payload" gorm:"type:text"`
	Enabled   bool       `json:"enabled" gorm:"default:true"`
	LastRunAt *time.Time `json:"last_run_at"`
	NextRunAt *time.Time `json:"next_run_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ScheduledJob) TableName() string {
	return "scheduled_jobs"
}

// JobListResponse represents a scheduled job in list responses
type JobListResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	JobType   string  `json:"job_type"`
	Cron      string  `json:"cron"`
	Enabled   bool    `json:"enabled"`
	LastRunAt *string `json:"last_run_at"` // RFC 3339
	NextRun   *string `json:"next_run"`    // RFC 3339
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// UpsertJobRequest represents a request to create or update a scheduled job
type UpsertJobRequest struct {
	Name    string      `json:"name"`
	JobType string      `json:"job_type"`
	Cron    string      `json:"cron"` // 5 or 6 fields
	Enabled bool        `json:"enabled"`
	Payload interface{} `json:"payload"` // map or JSON string
}

// JobFunc runs one execution of a job type with the job's decoded payload
type JobFunc func(ctx context.Context, payload map[string]interface{}) error

// RetentionPayload configures the task-sweep and artifact-prune jobs
type RetentionPayload struct {
	Retention string `json:"retention"` // time.ParseDuration format
}
