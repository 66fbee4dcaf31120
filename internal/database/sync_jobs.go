package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"syncengine/internal/models"
)

const syncJobColumns = `id, subject_type, subject_id, workspace_id, operation, provider,
        status, retry_count, max_retries, scheduled_at, claimed_at, processed_at,
        error_message, result_id, payload, created_at`

// EnqueueSyncJob inserts an outbound job, deduplicating on the
// (subject, provider, operation) lineage: a live job for the triple makes the
// enqueue a no-op, a previously failed one is reset to pending with a fresh
// retry budget instead of inserting a second row. Returns the live job.
func (db *DB) EnqueueSyncJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	if job.MaxRetries == 0 {
		job.MaxRetries = models.DefaultMaxRetries
	}

	existing, err := db.findJobForLineage(ctx, job.SubjectType, job.SubjectID, job.Provider, job.Operation)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.JobPending, models.JobProcessing:
			return existing, nil
		case models.JobFailed:
			reset := `UPDATE sync_jobs
                SET status = ?, retry_count = 0, scheduled_at = NULL, claimed_at = NULL,
                    processed_at = NULL, error_message = NULL, payload = ?
                WHERE id = ?`
			if _, err := db.ExecContext(ctx, reset, models.JobPending, job.Payload, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to reset failed sync job: %w", err)
			}
			return db.GetSyncJob(ctx, existing.ID)
		}
	}

	query := `INSERT INTO sync_jobs (subject_type, subject_id, workspace_id, operation, provider,
            status, retry_count, max_retries, scheduled_at, payload, created_at)
        VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		job.SubjectType,
		job.SubjectID,
		job.WorkspaceID,
		job.Operation,
		job.Provider,
		models.JobPending,
		job.MaxRetries,
		job.ScheduledAt,
		job.Payload,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue sync job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.Status = models.JobPending
	job.CreatedAt = now
	return job, nil
}

// findJobForLineage returns the most recent non-completed job for the triple.
func (db *DB) findJobForLineage(ctx context.Context, subjectType string, subjectID int64, provider, operation string) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs
        WHERE subject_type = ? AND subject_id = ? AND provider = ? AND operation = ?
          AND status != ?
        ORDER BY created_at DESC LIMIT 1`
	return db.scanSyncJob(db.QueryRowContext(ctx, query, subjectType, subjectID, provider, operation, models.JobCompleted))
}

// GetSyncJob returns a job by ID.
func (db *DB) GetSyncJob(ctx context.Context, id int64) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = ?`
	return db.scanSyncJob(db.QueryRowContext(ctx, query, id))
}

// ClaimDueJobs claims up to limit due jobs in creation order. Each claim is an
// optimistic compare-and-set on status, so no two claimants can win the same
// row: the UPDATE only fires while the job is still pending and due, and
// RowsAffected tells the winner apart from the losers.
func (db *DB) ClaimDueJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	now := time.Now()
	query := `SELECT id FROM sync_jobs
        WHERE status = ? AND retry_count < max_retries
          AND (scheduled_at IS NULL OR scheduled_at <= ?)
        ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.JobPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due jobs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due jobs: %w", err)
	}

	var claimed []models.SyncJob
	for _, id := range ids {
		job, err := db.ClaimJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			claimed = append(claimed, *job)
		}
	}
	return claimed, nil
}

// ClaimJob attempts to claim a single job. Returns nil without error when the
// job was already claimed, no longer due, or terminal.
func (db *DB) ClaimJob(ctx context.Context, id int64) (*models.SyncJob, error) {
	now := time.Now()
	query := `UPDATE sync_jobs SET status = ?, claimed_at = ?
        WHERE id = ? AND status = ? AND retry_count < max_retries
          AND (scheduled_at IS NULL OR scheduled_at <= ?)`
	result, err := db.ExecContext(ctx, query, models.JobProcessing, now, id, models.JobPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return db.GetSyncJob(ctx, id)
}

// CompleteSyncJob marks a processing job done, optionally recording the
// provider-returned id (message delivery outcome).
func (db *DB) CompleteSyncJob(ctx context.Context, id int64, resultID string) error {
	query := `UPDATE sync_jobs
        SET status = ?, processed_at = ?, error_message = NULL,
            result_id = CASE WHEN ? != '' THEN ? ELSE result_id END
        WHERE id = ? AND status = ?`
	_, err := db.ExecContext(ctx, query, models.JobCompleted, time.Now(), resultID, resultID, id, models.JobProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete sync job %d: %w", id, err)
	}
	return nil
}

// RetrySyncJob returns a processing job to pending with an incremented retry
// count and a future due time.
func (db *DB) RetrySyncJob(ctx context.Context, id int64, errMsg string, nextAttemptAt time.Time) error {
	query := `UPDATE sync_jobs
        SET status = ?, retry_count = retry_count + 1, error_message = ?,
            scheduled_at = ?, claimed_at = NULL
        WHERE id = ? AND status = ?`
	_, err := db.ExecContext(ctx, query, models.JobPending, errMsg, nextAttemptAt, id, models.JobProcessing)
	if err != nil {
		return fmt.Errorf("failed to schedule retry for sync job %d: %w", id, err)
	}
	return nil
}

// FailSyncJob terminates a processing job after its retry budget is spent.
func (db *DB) FailSyncJob(ctx context.Context, id int64, errMsg string) error {
	query := `UPDATE sync_jobs
        SET status = ?, retry_count = retry_count + 1, error_message = ?, processed_at = ?
        WHERE id = ? AND status = ?`
	_, err := db.ExecContext(ctx, query, models.JobFailed, errMsg, time.Now(), id, models.JobProcessing)
	if err != nil {
		return fmt.Errorf("failed to fail sync job %d: %w", id, err)
	}
	return nil
}

// SweepStaleJobs reclaims jobs stuck in processing past the threshold back to
// pending. A crash between claim and write-back is the only way to get here;
// the provider may see a duplicate call on the rerun.
func (db *DB) SweepStaleJobs(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleAfter)
	query := `UPDATE sync_jobs SET status = ?, claimed_at = NULL, scheduled_at = NULL
        WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?`
	result, err := db.ExecContext(ctx, query, models.JobPending, models.JobProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// GetFailedSyncJobs lists terminally failed jobs, newest first.
func (db *DB) GetFailedSyncJobs(ctx context.Context) ([]models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE status = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, models.JobFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.SyncJob
	for rows.Next() {
		job, err := db.scanSyncJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (db *DB) scanSyncJob(row rowScanner) (*models.SyncJob, error) {
	var job models.SyncJob
	err := row.Scan(
		&job.ID,
		&job.SubjectType,
		&job.SubjectID,
		&job.WorkspaceID,
		&job.Operation,
		&job.Provider,
		&job.Status,
		&job.RetryCount,
		&job.MaxRetries,
		&job.ScheduledAt,
		&job.ClaimedAt,
		&job.ProcessedAt,
		&job.ErrorMessage,
		&job.ResultID,
		&job.Payload,
		&job.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync job: %w", err)
	}
	return &job, nil
}
