package process

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pmorelli/braindump/internal/database"
	"github.com/pmorelli/braindump/internal/models"
	"github.com/pmorelli/braindump/internal/services/ai"
	"go.uber.org/zap"
)

const (
	// ExtractionErrorMessage is the fixed diagnostic stored when extraction
	// fails for any reason (adapter error, bad output, store failure).
	ExtractionErrorMessage = "AI processing failed"

	// dueDateLayout is the calendar date format accepted from extraction output
	dueDateLayout = "2006-01-02"

	// maxStatusRetries bounds the optimistic-concurrency retry loop on
	// process status updates
	maxStatusRetries = 3
)

// Extractor turns raw text into structured todo candidates
type Extractor interface {
	Extract(ctx context.Context, text string) ([]models.TodoCandidate, error)
}

// Pusher creates one task in the external tracker. priority uses the
// tracker's scale (4 = most urgent). Returns the external task ID.
type Pusher interface {
	Push(ctx context.Context, accessToken, content string, priority int, dueDate *time.Time) (string, error)
}

// Service owns the process lifecycle: creation, extraction runs, and the
// approval aggregation that decides the process-level status.
type Service struct {
	processes database.ProcessRepositoryInterface
	items     database.TodoItemRepositoryInterface
	extractor Extractor
	pusher    Pusher
	logger    *zap.Logger
}

// NewService creates a process service
func NewService(
	processes database.ProcessRepositoryInterface,
	items database.TodoItemRepositoryInterface,
	extractor Extractor,
	pusher Pusher,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		processes: processes,
		items:     items,
		extractor: extractor,
		pusher:    pusher,
		logger:    logger,
	}
}

// Create persists a new process in `incomplete` for the given owner.
// Content is immutable after this point.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, text string) (*models.Process, error) {
	proc := &models.Process{
		ID:      uuid.New(),
		UserID:  userID,
		Status:  models.ProcessStatusIncomplete,
		Content: text,
	}
	if err := s.processes.Create(ctx, proc); err != nil {
		return nil, &PersistenceError{Op: "create process", Err: err}
	}
	s.logger.Info("process_created",
		zap.String("process_id", proc.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("content_length", len(text)),
	)
	return proc, nil
}

// Get loads a process with its items
func (s *Service) Get(ctx context.Context, processID uuid.UUID) (*models.Process, []*models.TodoItem, error) {
	proc, err := s.processes.GetByID(ctx, processID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, &NotFoundError{Resource: "process", ID: processID}
		}
		return nil, nil, &PersistenceError{Op: "get process", Err: err}
	}
	items, err := s.items.GetByProcessID(ctx, processID)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "get items", Err: err}
	}
	return proc, items, nil
}

// RunExtraction invokes the extraction adapter for a process and drives the
// status to `processed` or `error`. It never lets a fault escape without
// first storing a terminal error state; the returned error is diagnostic
// for the caller (worker log, retry accounting), not an unrecorded fault.
//
// Re-invoking on a process that already reached a terminal status is a
// no-op: items are never appended twice.
func (s *Service) RunExtraction(ctx context.Context, processID uuid.UUID) error {
	proc, err := s.processes.GetByID(ctx, processID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Resource: "process", ID: processID}
		}
		return &PersistenceError{Op: "get process", Err: err}
	}

	switch proc.Status {
	case models.ProcessStatusIncomplete:
		claimed, err := s.processes.UpdateStatusCAS(ctx, processID, models.ProcessStatusProcessing, nil, proc.Version)
		if err != nil {
			return &PersistenceError{Op: "claim process", Err: err}
		}
		if !claimed {
			// Another worker got there first
			s.logger.Debug("extraction_claim_lost", zap.String("process_id", processID.String()))
			return nil
		}
		proc.Version++
	case models.ProcessStatusProcessing:
		// Re-delivered job; run extraction again against the claimed row
	default:
		s.logger.Debug("extraction_skipped_terminal_status",
			zap.String("process_id", processID.String()),
			zap.String("status", string(proc.Status)),
		)
		return nil
	}

	candidates, err := s.extractor.Extract(ctx, proc.Content)
	if err != nil {
		// Output that came back but fails the candidate schema is a
		// validation failure, not an adapter fault.
		if errors.Is(err, ai.ErrMalformedCandidates) {
			return s.failExtraction(ctx, proc, &ValidationError{Reason: err.Error()})
		}
		return s.failExtraction(ctx, proc, &AdapterError{Op: "extract", Err: err})
	}

	items, err := buildItems(processID, candidates)
	if err != nil {
		return s.failExtraction(ctx, proc, err)
	}

	// Zero candidates is a valid outcome: the process completes with no items
	if len(items) > 0 {
		if err := s.items.CreateBatch(ctx, items); err != nil {
			return s.failExtraction(ctx, proc, &PersistenceError{Op: "create items", Err: err})
		}
	}

	if err := s.storeExtractionOutcome(ctx, processID, models.ProcessStatusProcessed, nil, proc.Version); err != nil {
		return s.failExtraction(ctx, proc, &PersistenceError{Op: "finish process", Err: err})
	}

	s.logger.Info("extraction_completed",
		zap.String("process_id", processID.String()),
		zap.Int("item_count", len(items)),
	)
	return nil
}

// storeExtractionOutcome writes a terminal extraction status through the
// version CAS, re-reading and retrying a bounded number of times on conflict
// so a concurrent writer cannot strand the process in `processing`. A re-read
// that finds the process already terminal means another run finished it.
func (s *Service) storeExtractionOutcome(ctx context.Context, processID uuid.UUID, status models.ProcessStatus, errorMessage *string, version int) error {
	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		updated, err := s.processes.UpdateStatusCAS(ctx, processID, status, errorMessage, version)
		if err != nil {
			return &PersistenceError{Op: "store extraction outcome", Err: err}
		}
		if updated {
			return nil
		}

		proc, err := s.processes.GetByID(ctx, processID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &NotFoundError{Resource: "process", ID: processID}
			}
			return &PersistenceError{Op: "get process", Err: err}
		}
		if proc.Status.IsTerminal() {
			return nil
		}
		version = proc.Version

		s.logger.Debug("extraction_outcome_conflict",
			zap.String("process_id", processID.String()),
			zap.Int("attempt", attempt+1),
		)
	}
	return &PersistenceError{Op: "store extraction outcome", Err: errors.New("version conflict retries exhausted")}
}

// failExtraction records the terminal error state and returns the cause.
// Storing the error state is best-effort: if even that write fails, the
// fault is logged and the cause still returned.
func (s *Service) failExtraction(ctx context.Context, proc *models.Process, cause error) error {
	msg := ExtractionErrorMessage
	if err := s.storeExtractionOutcome(ctx, proc.ID, models.ProcessStatusError, &msg, proc.Version); err != nil {
		s.logger.Error("failed_to_record_extraction_error",
			zap.String("process_id", proc.ID.String()),
			zap.Error(err),
		)
	}
	s.logger.Warn("extraction_failed",
		zap.String("process_id", proc.ID.String()),
		zap.Error(cause),
	)
	return cause
}

// buildItems validates extraction candidates against the item schema and
// converts them to pending todo items. Validation is fail-fast: one bad
// candidate voids the whole batch.
func buildItems(processID uuid.UUID, candidates []models.TodoCandidate) ([]*models.TodoItem, error) {
	items := make([]*models.TodoItem, 0, len(candidates))
	for _, c := range candidates {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			return nil, &ValidationError{Reason: "candidate content is empty"}
		}

		priority := models.DefaultPriority
		if c.Priority != "" {
			priority = models.Priority(c.Priority)
			if !priority.Valid() {
				return nil, &ValidationError{Reason: "candidate priority must be p1..p4, got " + c.Priority}
			}
		}

		var dueDate *time.Time
		if c.DueDate != nil && *c.DueDate != "" {
			parsed, err := time.Parse(dueDateLayout, *c.DueDate)
			if err != nil {
				return nil, &ValidationError{Reason: "candidate due date must be YYYY-MM-DD, got " + *c.DueDate}
			}
			dueDate = &parsed
		}

		items = append(items, &models.TodoItem{
			ID:        uuid.New(),
			ProcessID: processID,
			Content:   content,
			Priority:  priority,
			DueDate:   dueDate,
			Approval:  models.ApprovalPending,
		})
	}
	return items, nil
}
