package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	logpkg "github.com/pmorelli/braindump/internal/logger"
	"github.com/pmorelli/braindump/internal/process"
	"github.com/pmorelli/braindump/internal/queue"
	"github.com/pmorelli/braindump/internal/services/ai"
)

// JobProcessor handles a single job of a registered type.
type JobProcessor func(ctx context.Context, job *queue.Job) error

type processorEntry struct {
	proc          JobProcessor
	useRetryDelay bool
}

// Extractor consumes extraction jobs and runs them through the process service
type Extractor struct {
	service  *process.Service
	jobQueue queue.JobQueue // For re-enqueueing jobs with delays
	logger   *zap.Logger
	registry map[queue.JobType]processorEntry
}

// NewExtractor creates a new extraction worker and registers the extraction processor.
func NewExtractor(service *process.Service, jobQueue queue.JobQueue, logger *zap.Logger) *Extractor {
	e := &Extractor{
		service:  service,
		jobQueue: jobQueue,
		logger:   logger,
		registry: make(map[queue.JobType]processorEntry),
	}
	e.RegisterProcessor(queue.JobTypeExtraction, e.ProcessExtractionJob, true)
	return e
}

// RegisterProcessor registers a processor for a job type.
func (e *Extractor) RegisterProcessor(typ queue.JobType, proc JobProcessor, useRetryDelay bool) {
	e.registry[typ] = processorEntry{proc: proc, useRetryDelay: useRetryDelay}
}

// ProcessExtractionJob runs extraction for the job's process
func (e *Extractor) ProcessExtractionJob(ctx context.Context, job *queue.Job) error {
	if job.ProcessID == uuid.Nil {
		return fmt.Errorf("process_id is required for extraction job")
	}

	e.logger.Info("processing_extraction_job",
		zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
		zap.String("process_id", logpkg.SanitizeUserID(job.ProcessID.String())),
	)

	if err := e.service.RunExtraction(ctx, job.ProcessID); err != nil {
		return fmt.Errorf("failed to run extraction: %w", err)
	}

	e.logger.Info("extraction_job_completed",
		zap.String("process_id", logpkg.SanitizeUserID(job.ProcessID.String())),
	)
	return nil
}

// ProcessJob processes a job based on its type using the processor registry.
func (e *Extractor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if !job.ShouldProcess() {
		fields := []zap.Field{zap.String("job_id", logpkg.SanitizeUserID(job.ID.String()))}
		if job.NotBefore != nil {
			fields = append(fields, zap.Time("not_before", *job.NotBefore))
		}
		e.logger.Debug("extraction_job_not_ready", fields...)
		if ackErr := msg.Ack(); ackErr != nil {
			e.logger.Warn("failed_to_ack_job_for_later_processing",
				zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
				zap.String("error", logpkg.SanitizeError(ackErr)),
			)
		}
		return nil
	}

	ent, ok := e.registry[job.Type]
	if !ok {
		if nackErr := msg.Nack(false); nackErr != nil {
			e.logger.Error("failed_to_nack_unknown_job_type",
				zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
				zap.String("job_type", string(job.Type)),
				zap.String("error", logpkg.SanitizeError(nackErr)),
			)
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err := ent.proc(ctx, job); err != nil {
		if ent.useRetryDelay {
			return e.handleJobError(ctx, msg, job, err)
		}
		e.logger.Error("extraction_job_failed",
			zap.String("operation", "process_job"),
			zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			e.logger.Warn("failed_to_nack_extraction_job",
				zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
				zap.String("error", logpkg.SanitizeError(nackErr)),
			)
		}
		return fmt.Errorf("extraction failed: %w", err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack extraction job: %w", ackErr)
	}
	return nil
}

// handleJobError handles processing errors with retry logic. Rate limit and
// quota errors are re-enqueued through the delayed exchange; everything else
// goes to the DLQ.
func (e *Extractor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if ai.IsQuotaError(err) || ai.IsRateLimitError(err) {
		retryDelay := ai.GetRetryDelay(err, job.RetryCount)

		if job.CanRetry() && e.jobQueue != nil {
			notBefore := time.Now().Add(retryDelay)
			delayedJob := &queue.Job{
				ID:         job.ID,
				Type:       job.Type,
				UserID:     job.UserID,
				ProcessID:  job.ProcessID,
				NotBefore:  &notBefore,
				NotAfter:   job.NotAfter,
				Metadata:   job.Metadata,
				CreatedAt:  job.CreatedAt,
				RetryCount: job.RetryCount + 1,
				MaxRetries: job.MaxRetries,
			}

			if ackErr := msg.Ack(); ackErr != nil {
				e.logger.Warn("failed_to_ack_job_before_reenqueue",
					zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
					zap.String("error", logpkg.SanitizeError(ackErr)),
				)
			}

			if enqueueErr := e.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
				return fmt.Errorf("provider throttled, failed to re-enqueue: %w", enqueueErr)
			}

			e.logger.Info("extraction_job_delayed",
				zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
				zap.Duration("retry_delay", retryDelay),
				zap.Int("retry_count", job.RetryCount+1),
			)
			return nil
		}

		// Out of retries or no queue access
		if nackErr := msg.Nack(false); nackErr != nil {
			e.logger.Warn("failed_to_nack_throttled_job",
				zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
				zap.String("error", logpkg.SanitizeError(nackErr)),
			)
		}
		return fmt.Errorf("provider throttled (job %s): %w", job.ID, err)
	}

	// Non-retryable: the process has already been moved to its error state
	// by the service, so the message only needs to leave the queue.
	e.logger.Error("extraction_job_failed",
		zap.String("operation", "process_job"),
		zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
		zap.String("process_id", logpkg.SanitizeUserID(job.ProcessID.String())),
		zap.String("error", logpkg.SanitizeError(err)),
	)
	if nackErr := msg.Nack(false); nackErr != nil {
		e.logger.Warn("failed_to_nack_extraction_job",
			zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
			zap.String("error", logpkg.SanitizeError(nackErr)),
		)
	}
	return fmt.Errorf("extraction failed: %w", err)
}
