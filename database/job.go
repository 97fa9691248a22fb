package database

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobType represents the document operation a job ran
type JobType string

const (
	JobTypeMerge           JobType = "merge"
	JobTypeMergePages      JobType = "merge_pages"
	JobTypeImagesToPdf     JobType = "images_to_pdf"
	JobTypeProtectionCheck JobType = "protection_check"
	JobTypeSniff           JobType = "sniff"
	JobTypeLock            JobType = "lock"
	JobTypeUnlock          JobType = "unlock"
	JobTypeRenderPages     JobType = "render_pages"
	JobTypeRenderLong      JobType = "render_long"
	JobTypeCleanup         JobType = "cleanup"
)

// Job represents one document operation run through the server
type Job struct {
	ID          ulid.ULID  `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`         // 0-100
	CurrentStep string     `json:"currentStep"`      // Human-readable current step
	TotalSteps  int        `json:"totalSteps"`       // Total number of steps
	Message     string     `json:"message"`          // Status message
	Error       string     `json:"error,omitempty"`  // Error message if failed
	Result      string     `json:"result,omitempty"` // JSON result data
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ProgressPercent converts a 1-indexed step count to a 0-100 job progress
func ProgressPercent(current, total int) int {
	if total <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	if current < 0 {
		return 0
	}
	return current * 100 / total
}
