package models

import "time"

// SyncJob is a durable unit of outbound work referencing one subject and one
// external provider. It terminates in completed or failed; transient failures
// return it to pending with a future ScheduledAt.
type SyncJob struct {
	ID           int64      `json:"id"`
	SubjectType  string     `json:"subject_type"`
	SubjectID    int64      `json:"subject_id"`
	WorkspaceID  int64      `json:"workspace_id"`
	Operation    string     `json:"operation"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
	ClaimedAt    *time.Time `json:"claimed_at"`
	ProcessedAt  *time.Time `json:"processed_at"`
	ErrorMessage *string    `json:"error_message"`
	ResultID     *string    `json:"result_id"`
	Payload      string     `json:"payload"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Terminal reports whether the job can never run again.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
