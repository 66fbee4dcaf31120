package models

import "time"

// Appointment is owned by the booking subsystem. The sync engine reads the
// scheduling fields and writes only the sync_* and external_* fields.
type Appointment struct {
	ID                  int64      `json:"id"`
	WorkspaceID         int64      `json:"workspace_id"`
	ContactID           int64      `json:"contact_id"`
	ScheduledAt         time.Time  `json:"scheduled_at"`
	DurationMinutes     int        `json:"duration_minutes"`
	ServiceType         string     `json:"service_type,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	Status              string     `json:"status"`
	SyncStatus          string     `json:"sync_status"`
	ExternalProviderID  string     `json:"external_provider_id,omitempty"`
	ExternalEventID     string     `json:"external_event_id,omitempty"`
	ExternalSecondaryID string     `json:"external_event_secondary_id,omitempty"`
	SyncError           *string    `json:"sync_error,omitempty"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// AppointmentPayload is the point-in-time snapshot stored on a sync job so the
// operation can be replayed without re-reading the appointment.
type AppointmentPayload struct {
	SubjectID       int64     `json:"subjectId"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	DurationMinutes int       `json:"durationMinutes"`
	ServiceType     string    `json:"serviceType,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}
