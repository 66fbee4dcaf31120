package models

// Appointment lifecycle statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
	AppointmentNoShow    = "no_show"
)

// Sync statuses carried on appointments.
const (
	SyncPending  = "pending"
	SyncSynced   = "synced"
	SyncFailed   = "failed"
	SyncConflict = "conflict"
)

// Sync job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Sync job operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpCancel = "cancel"
)

// Job subject kinds.
const (
	SubjectAppointment = "appointment"
	SubjectMessage     = "message"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

const (
	// DefaultMaxRetries is the attempt budget for a sync job.
	DefaultMaxRetries = 3

	// DefaultPollInterval seconds between worker poll cycles
	DefaultPollInterval = 30

	// DefaultBatchSize jobs claimed per poll cycle
	DefaultBatchSize = 10

	// DefaultStaleAfter seconds before a processing job is considered abandoned
	DefaultStaleAfter = 600

	// DefaultFailureThreshold consecutive failures before a breaker opens
	DefaultFailureThreshold = 5

	// DefaultBreakerTimeout seconds an open breaker waits before a half-open probe
	DefaultBreakerTimeout = 120

	// DefaultAdapterTimeout seconds for a single outbound provider call
	DefaultAdapterTimeout = 15

	// DefaultCredentialsTTL seconds a credential lookup stays memoized
	DefaultCredentialsTTL = 300
)
