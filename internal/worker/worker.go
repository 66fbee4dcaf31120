package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"syncengine/internal/breaker"
	"syncengine/internal/config"
	"syncengine/internal/database"
	"syncengine/internal/metrics"
	"syncengine/internal/models"
	"syncengine/internal/provider"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AdapterFactory builds provider clients per workspace. Satisfied by
// provider.Factory; faked in tests.
type AdapterFactory interface {
	Calendar(ctx context.Context, workspaceID int64, providerID string) (provider.CalendarAdapter, error)
	Messenger(ctx context.Context, workspaceID int64, providerID string) (provider.MessageSender, error)
}

// SyncWorker drains the sync job queue: claim due jobs, drive the breaker and
// the provider adapter, and write results back to the job and its subject.
// Multiple workers may share one job table; the optimistic claim in the store
// keeps them from colliding.
type SyncWorker struct {
	db          *database.DB
	factory     AdapterFactory
	breakers    *breaker.Registry
	redis       *redis.Client
	retryPolicy RetryPolicy

	pollInterval time.Duration
	batchSize    int
	maxRetries   int
	staleAfter   time.Duration

	hintQueueKey  string
	deadLetterKey string
	logger        *zerolog.Logger
}

// NewSyncWorker builds a worker with sane defaults.
func NewSyncWorker(
	db *database.DB,
	factory AdapterFactory,
	breakers *breaker.Registry,
	redisClient *redis.Client,
	cfg config.WorkerConfig,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *SyncWorker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = models.DefaultPollInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = models.DefaultBatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = models.DefaultMaxRetries
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = models.DefaultStaleAfter
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SyncWorker{
		db:            db,
		factory:       factory,
		breakers:      breakers,
		redis:         redisClient,
		retryPolicy:   retry,
		pollInterval:  time.Duration(cfg.PollInterval) * time.Second,
		batchSize:     cfg.BatchSize,
		maxRetries:    cfg.MaxRetries,
		staleAfter:    time.Duration(cfg.StaleAfter) * time.Second,
		hintQueueKey:  "syncjobs:hints",
		deadLetterKey: "syncjobs:deadletter",
		logger:        logger,
	}
}

// Enqueue persists an outbound job and nudges the worker via redis. The
// store deduplicates per (subject, provider, operation) lineage.
func (w *SyncWorker) Enqueue(ctx context.Context, subjectType string, subjectID, workspaceID int64, operation, providerID string, payload any) (*models.SyncJob, error) {
	if subjectType == "" || operation == "" || providerID == "" {
		return nil, errors.New("subject type, operation and provider are required")
	}
	if subjectID == 0 {
		return nil, errors.New("subject id is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	job, err := w.db.EnqueueSyncJob(ctx, &models.SyncJob{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		WorkspaceID: workspaceID,
		Operation:   operation,
		Provider:    providerID,
		MaxRetries:  w.maxRetries,
		Payload:     string(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("persist sync job: %w", err)
	}

	// Best-effort wake-up; polling picks the job up anyway.
	if w.redis != nil {
		if err := w.redis.LPush(ctx, w.hintQueueKey, strconv.FormatInt(job.ID, 10)).Err(); err != nil {
			w.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("sync_worker: redis hint push failed")
		}
	}
	return job, nil
}

// Start launches the polling loop; it returns when ctx is done. An in-flight
// adapter call is allowed to finish before the loop observes the stop.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sync_worker: started")
	defer w.logger.Info().Msg("sync_worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if n, err := w.db.SweepStaleJobs(ctx, w.staleAfter); err != nil {
			w.logger.Error().Err(err).Msg("sync_worker: sweep stale jobs")
		} else if n > 0 {
			w.logger.Warn().Int64("count", n).Msg("sync_worker: reclaimed stale processing jobs")
		}

		jobs, err := w.db.ClaimDueJobs(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("sync_worker: claim due jobs")
			w.wait(ctx)
			continue
		}

		for i := range jobs {
			w.processJob(ctx, &jobs[i])
		}

		if len(jobs) == w.batchSize {
			// Queue likely still has due work; skip the idle wait.
			continue
		}

		if id, ok := w.waitHint(ctx); ok {
			job, err := w.db.ClaimJob(ctx, id)
			if err != nil {
				w.logger.Error().Err(err).Int64("job_id", id).Msg("sync_worker: claim hinted job")
				continue
			}
			if job != nil {
				w.processJob(ctx, job)
			}
		}
	}
}

// waitHint blocks until the next poll is due, returning early with a job id
// when a redis wake-up hint arrives.
func (w *SyncWorker) waitHint(ctx context.Context) (int64, bool) {
	if w.redis == nil {
		w.wait(ctx)
		return 0, false
	}

	res, err := w.redis.BRPop(ctx, w.pollInterval, w.hintQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("sync_worker: redis BRPOP error")
			w.wait(ctx)
		}
		return 0, false
	}
	if len(res) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		w.logger.Warn().Str("hint", res[1]).Msg("sync_worker: malformed redis hint")
		return 0, false
	}
	return id, true
}

func (w *SyncWorker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

// processJob drives one claimed job to completion, retry, or terminal
// failure. The job is already in processing state.
func (w *SyncWorker) processJob(ctx context.Context, job *models.SyncJob) {
	start := time.Now()
	resultID, bookingRes, err := w.runJob(ctx, job)
	metrics.ObserveJobDuration(job.Provider, time.Since(start).Seconds())

	if err != nil {
		w.retryOrFail(ctx, job, err)
		return
	}

	if err := w.db.CompleteSyncJob(ctx, job.ID, resultID); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("sync_worker: mark completed")
		return
	}

	if job.SubjectType == models.SubjectAppointment {
		var eventID, secondaryID string
		if bookingRes != nil {
			eventID = bookingRes.EventID
			secondaryID = bookingRes.SecondaryID
		}
		if err := w.db.MarkAppointmentSynced(ctx, job.SubjectID, job.Provider, eventID, secondaryID); err != nil {
			w.logger.Error().Err(err).Int64("appointment_id", job.SubjectID).Msg("sync_worker: mark appointment synced")
		}
	}

	metrics.IncSyncJob(job.Provider, metrics.JobCompleted)
	w.logger.Info().
		Int64("job_id", job.ID).
		Str("provider", job.Provider).
		Str("operation", job.Operation).
		Msg("sync_worker: job completed")
}

// runJob performs the breaker-gated provider call for the job's operation.
func (w *SyncWorker) runJob(ctx context.Context, job *models.SyncJob) (string, *provider.BookingResult, error) {
	br := w.breakers.For(job.Provider)

	if job.SubjectType == models.SubjectMessage {
		var payload models.MessagePayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return "", nil, fmt.Errorf("decode message payload: %w", err)
		}

		sender, err := w.factory.Messenger(ctx, job.WorkspaceID, job.Provider)
		if err != nil {
			return "", nil, err
		}
		defer sender.Close()

		var messageID string
		err = br.Do(func() error {
			id, sendErr := sender.SendMessage(ctx, payload)
			messageID = id
			return sendErr
		})
		return messageID, nil, err
	}

	var payload models.AppointmentPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return "", nil, fmt.Errorf("decode appointment payload: %w", err)
	}

	adapter, err := w.factory.Calendar(ctx, job.WorkspaceID, job.Provider)
	if err != nil {
		return "", nil, err
	}
	defer adapter.Close()

	switch job.Operation {
	case models.OpCreate:
		var res *provider.BookingResult
		err = br.Do(func() error {
			r, callErr := adapter.CreateEvent(ctx, payload)
			res = r
			return callErr
		})
		return "", res, err

	case models.OpUpdate, models.OpCancel:
		appt, err := w.db.GetAppointment(ctx, job.SubjectID)
		if err != nil {
			return "", nil, fmt.Errorf("load appointment %d: %w", job.SubjectID, err)
		}
		if appt.ExternalEventID == "" {
			return "", nil, fmt.Errorf("appointment %d has no external event id to %s", appt.ID, job.Operation)
		}

		if job.Operation == models.OpUpdate {
			return "", nil, br.Do(func() error {
				return adapter.UpdateEvent(ctx, appt.ExternalEventID, payload)
			})
		}
		return "", nil, br.Do(func() error {
			return adapter.CancelEvent(ctx, appt.ExternalEventID, "")
		})
	}

	return "", nil, fmt.Errorf("unknown operation %q", job.Operation)
}

// retryOrFail applies the backoff policy: transient failures go back to
// pending with a 2^n minute delay, an exhausted budget is terminal and
// propagates to the subject.
func (w *SyncWorker) retryOrFail(ctx context.Context, job *models.SyncJob, cause error) {
	attempt := job.RetryCount + 1
	if attempt >= job.MaxRetries {
		if err := w.db.FailSyncJob(ctx, job.ID, cause.Error()); err != nil {
			w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("sync_worker: mark failed")
		}
		if job.SubjectType == models.SubjectAppointment {
			if err := w.db.MarkAppointmentSyncFailed(ctx, job.SubjectID, cause.Error()); err != nil {
				w.logger.Error().Err(err).Int64("appointment_id", job.SubjectID).Msg("sync_worker: mark appointment failed")
			}
		}
		w.pushDeadLetter(ctx, job, cause)
		metrics.IncSyncJob(job.Provider, metrics.JobFailed)
		w.logger.Error().
			Err(cause).
			Int64("job_id", job.ID).
			Str("provider", job.Provider).
			Int("retry_count", attempt).
			Msg("sync_worker: job failed permanently")
		return
	}

	nextAttempt := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.RetrySyncJob(ctx, job.ID, cause.Error(), nextAttempt); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("sync_worker: mark retry")
	}
	metrics.IncSyncJob(job.Provider, metrics.JobRetried)
	w.logger.Warn().
		Err(cause).
		Int64("job_id", job.ID).
		Str("provider", job.Provider).
		Int("retry_count", attempt).
		Time("next_attempt_at", nextAttempt).
		Bool("breaker_open", errors.Is(cause, breaker.ErrOpen)).
		Msg("sync_worker: job will retry")
}

func (w *SyncWorker) pushDeadLetter(ctx context.Context, job *models.SyncJob, cause error) {
	if w.redis == nil {
		return
	}
	entry := map[string]any{
		"job_id":    job.ID,
		"provider":  job.Provider,
		"operation": job.Operation,
		"subject":   fmt.Sprintf("%s/%d", job.SubjectType, job.SubjectID),
		"error":     cause.Error(),
		"failed_at": time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("sync_worker: deadletter push failed")
	}
}
