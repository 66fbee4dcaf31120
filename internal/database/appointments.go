package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"syncengine/internal/models"
)

const appointmentColumns = `id, workspace_id, contact_id, scheduled_at, duration_minutes,
        service_type, notes, status, sync_status, external_provider_id, external_event_id,
        external_event_secondary_id, sync_error, last_synced_at, created_at, updated_at`

// CreateAppointment inserts a new appointment owned by the booking subsystem.
func (db *DB) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	query := `
        INSERT INTO appointments (workspace_id, contact_id, scheduled_at, duration_minutes,
            service_type, notes, status, sync_status, external_provider_id, external_event_id,
            external_event_secondary_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	now := time.Now()
	if appt.Status == "" {
		appt.Status = models.AppointmentScheduled
	}
	if appt.SyncStatus == "" {
		appt.SyncStatus = models.SyncPending
	}

	result, err := db.ExecContext(ctx, query,
		appt.WorkspaceID,
		appt.ContactID,
		appt.ScheduledAt,
		appt.DurationMinutes,
		appt.ServiceType,
		appt.Notes,
		appt.Status,
		appt.SyncStatus,
		appt.ExternalProviderID,
		appt.ExternalEventID,
		appt.ExternalSecondaryID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	appt.ID = id
	appt.CreatedAt = now
	appt.UpdatedAt = now
	return nil
}

// GetAppointment returns an appointment by ID.
func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	return db.scanAppointment(db.QueryRowContext(ctx, query, id))
}

// GetAppointmentByExternalID locates the appointment linked to an external
// provider event. Inbound webhooks resolve their subject through this lookup.
func (db *DB) GetAppointmentByExternalID(ctx context.Context, provider, externalEventID string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
        FROM appointments WHERE external_provider_id = ? AND external_event_id = ?`
	return db.scanAppointment(db.QueryRowContext(ctx, query, provider, externalEventID))
}

// RescheduleAppointment applies an inbound reschedule: new time and duration,
// sync considered settled.
func (db *DB) RescheduleAppointment(ctx context.Context, id int64, scheduledAt time.Time, durationMinutes int) error {
	query := `UPDATE appointments
        SET scheduled_at = ?, duration_minutes = ?, sync_status = ?, sync_error = NULL, updated_at = ?
        WHERE id = ?`
	_, err := db.ExecContext(ctx, query, scheduledAt, durationMinutes, models.SyncSynced, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule appointment %d: %w", id, err)
	}
	return nil
}

// CancelAppointment applies an inbound cancellation.
func (db *DB) CancelAppointment(ctx context.Context, id int64) error {
	query := `UPDATE appointments
        SET status = ?, sync_status = ?, sync_error = NULL, updated_at = ?
        WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.AppointmentCancelled, models.SyncSynced, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment %d: %w", id, err)
	}
	return nil
}

// MarkAppointmentSynced records a successful outbound sync together with the
// provider's returned identifiers.
func (db *DB) MarkAppointmentSynced(ctx context.Context, id int64, provider, externalEventID, externalSecondaryID string) error {
	now := time.Now()
	query := `UPDATE appointments
        SET sync_status = ?, sync_error = NULL, external_provider_id = ?,
            external_event_id = CASE WHEN ? != '' THEN ? ELSE external_event_id END,
            external_event_secondary_id = CASE WHEN ? != '' THEN ? ELSE external_event_secondary_id END,
            last_synced_at = ?, updated_at = ?
        WHERE id = ?`
	_, err := db.ExecContext(ctx, query,
		models.SyncSynced, provider,
		externalEventID, externalEventID,
		externalSecondaryID, externalSecondaryID,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark appointment %d synced: %w", id, err)
	}
	return nil
}

// MarkAppointmentSyncFailed records a terminal sync failure on the subject.
// Transient retries never reach this; only an exhausted retry budget does.
func (db *DB) MarkAppointmentSyncFailed(ctx context.Context, id int64, syncError string) error {
	query := `UPDATE appointments SET sync_status = ?, sync_error = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.SyncFailed, syncError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark appointment %d sync failed: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanAppointment(row rowScanner) (*models.Appointment, error) {
	var appt models.Appointment
	var serviceType, notes sql.NullString
	err := row.Scan(
		&appt.ID,
		&appt.WorkspaceID,
		&appt.ContactID,
		&appt.ScheduledAt,
		&appt.DurationMinutes,
		&serviceType,
		&notes,
		&appt.Status,
		&appt.SyncStatus,
		&appt.ExternalProviderID,
		&appt.ExternalEventID,
		&appt.ExternalSecondaryID,
		&appt.SyncError,
		&appt.LastSyncedAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}
	appt.ServiceType = serviceType.String
	appt.Notes = notes.String
	return &appt, nil
}
