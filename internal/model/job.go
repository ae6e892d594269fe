package model

import "time"

// JobStatus is the lifecycle state of a scheduled job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ScheduledJob is a row of the durable delayed-job table. Key is unique
// across all statuses, so re-enqueueing a finished key stays a no-op.
type ScheduledJob struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Queue       string    `gorm:"size:64;not null;index:idx_job_ready,priority:1"`
	Key         string    `gorm:"column:job_key;size:128;not null;uniqueIndex"`
	Payload     []byte    `gorm:"not null"`
	Status      JobStatus `gorm:"size:16;not null;index:idx_job_ready,priority:2"`
	RunAt       time.Time `gorm:"not null;index:idx_job_ready,priority:3"`
	Attempt     int       `gorm:"not null"`
	MaxAttempts int       `gorm:"not null"`
	LockedUntil *time.Time
	LastError   string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
