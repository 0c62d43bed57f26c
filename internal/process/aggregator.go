package process

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/pmorelli/braindump/internal/models"
	"go.uber.org/zap"
)

// ExternalPriority maps an internal priority to the external tracker's
// inverted four-level scale: p1 (most urgent) becomes 4, p4 becomes 1.
// Anything unrecognized maps to 1.
func ExternalPriority(p models.Priority) int {
	switch p {
	case models.PriorityP1:
		return 4
	case models.PriorityP2:
		return 3
	case models.PriorityP3:
		return 2
	case models.PriorityP4:
		return 1
	default:
		return 1
	}
}

// ApproveResult reports a successful single-item approval
type ApproveResult struct {
	Item          *models.TodoItem     `json:"item"`
	TaskID        string               `json:"task_id"`
	ProcessStatus models.ProcessStatus `json:"process_status"`
}

// BulkFailure records one item whose push failed during bulk approval
type BulkFailure struct {
	ItemID uuid.UUID `json:"item_id"`
	Error  string    `json:"error"`
}

// BulkApprovalSummary reports the outcome of approving all pending items.
// Items whose push failed stay pending and appear in Failed.
type BulkApprovalSummary struct {
	Approved      int                  `json:"approved"`
	Failed        []BulkFailure        `json:"failed,omitempty"`
	ProcessStatus models.ProcessStatus `json:"process_status"`
}

// ApproveItem pushes one pending item to the external tracker and, only if
// the push succeeded, marks it approved and recomputes the process status.
// A failed push leaves the item pending so the caller can retry.
func (s *Service) ApproveItem(ctx context.Context, itemID uuid.UUID, accessToken string) (*ApproveResult, error) {
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Approval.Resolved() {
		return nil, ErrAlreadyResolved
	}

	taskID, err := s.pusher.Push(ctx, accessToken, item.Content, ExternalPriority(item.Priority), item.DueDate)
	if err != nil {
		return nil, &AdapterError{Op: "push", Err: err}
	}

	updated, err := s.items.SetApproval(ctx, itemID, models.ApprovalApproved)
	if err != nil {
		return nil, &PersistenceError{Op: "approve item", Err: err}
	}
	if !updated {
		// Raced with another resolution after the push; the push already
		// happened so report the conflict rather than silently succeeding.
		return nil, ErrAlreadyResolved
	}
	item.Approval = models.ApprovalApproved

	status, err := s.recomputeStatus(ctx, item.ProcessID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("item_approved",
		zap.String("item_id", itemID.String()),
		zap.String("process_id", item.ProcessID.String()),
		zap.String("task_id", taskID),
		zap.String("process_status", string(status)),
	)
	return &ApproveResult{Item: item, TaskID: taskID, ProcessStatus: status}, nil
}

// RejectItem marks one pending item rejected and recomputes the process
// status. No push happens. A rejection can finish the review but never
// yields `accepted`.
func (s *Service) RejectItem(ctx context.Context, itemID uuid.UUID) (models.ProcessStatus, error) {
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item.Approval.Resolved() {
		return "", ErrAlreadyResolved
	}

	updated, err := s.items.SetApproval(ctx, itemID, models.ApprovalRejected)
	if err != nil {
		return "", &PersistenceError{Op: "reject item", Err: err}
	}
	if !updated {
		return "", ErrAlreadyResolved
	}

	status, err := s.recomputeStatus(ctx, item.ProcessID)
	if err != nil {
		return "", err
	}

	s.logger.Info("item_rejected",
		zap.String("item_id", itemID.String()),
		zap.String("process_id", item.ProcessID.String()),
		zap.String("process_status", string(status)),
	)
	return status, nil
}

// ApproveAllPending pushes every pending item of a process sequentially.
// Per-item outcomes are tracked: only items whose push succeeded are marked
// approved, failures stay pending and are reported in the summary. The
// process becomes `accepted` only once nothing is pending and nothing was
// rejected.
func (s *Service) ApproveAllPending(ctx context.Context, processID uuid.UUID, accessToken string) (*BulkApprovalSummary, error) {
	if _, err := s.processes.GetByID(ctx, processID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "process", ID: processID}
		}
		return nil, &PersistenceError{Op: "get process", Err: err}
	}

	pending, err := s.items.GetPendingByProcessID(ctx, processID)
	if err != nil {
		return nil, &PersistenceError{Op: "get pending items", Err: err}
	}

	summary := &BulkApprovalSummary{}
	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, pushErr := s.pusher.Push(ctx, accessToken, item.Content, ExternalPriority(item.Priority), item.DueDate)
		if pushErr != nil {
			summary.Failed = append(summary.Failed, BulkFailure{ItemID: item.ID, Error: pushErr.Error()})
			s.logger.Warn("bulk_approve_push_failed",
				zap.String("item_id", item.ID.String()),
				zap.String("process_id", processID.String()),
				zap.Error(pushErr),
			)
			continue
		}
		updated, err := s.items.SetApproval(ctx, item.ID, models.ApprovalApproved)
		if err != nil {
			summary.Failed = append(summary.Failed, BulkFailure{ItemID: item.ID, Error: err.Error()})
			continue
		}
		if updated {
			summary.Approved++
		}
	}

	status, err := s.recomputeStatus(ctx, processID)
	if err != nil {
		return nil, err
	}
	summary.ProcessStatus = status

	s.logger.Info("bulk_approval_finished",
		zap.String("process_id", processID.String()),
		zap.Int("approved", summary.Approved),
		zap.Int("failed", len(summary.Failed)),
		zap.String("process_status", string(status)),
	)
	return summary, nil
}

func (s *Service) loadItem(ctx context.Context, itemID uuid.UUID) (*models.TodoItem, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "todo item", ID: itemID}
		}
		return nil, &PersistenceError{Op: "get item", Err: err}
	}
	return item, nil
}

// recomputeStatus derives the process status from the collective item state.
// If anything is still pending the status is untouched. Once everything is
// resolved: all approved means `accepted`, otherwise `processed`. The write
// is a compare-and-swap on the process version, retried a bounded number of
// times so concurrent resolutions converge on one final status.
func (s *Service) recomputeStatus(ctx context.Context, processID uuid.UUID) (models.ProcessStatus, error) {
	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		proc, err := s.processes.GetByID(ctx, processID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", &NotFoundError{Resource: "process", ID: processID}
			}
			return "", &PersistenceError{Op: "get process", Err: err}
		}

		pendingCount, _, rejectedCount, err := s.items.CountByApproval(ctx, processID)
		if err != nil {
			return "", &PersistenceError{Op: "count items", Err: err}
		}

		if pendingCount > 0 {
			return proc.Status, nil
		}

		target := models.ProcessStatusAccepted
		if rejectedCount > 0 {
			target = models.ProcessStatusProcessed
		}

		if proc.Status == target {
			return target, nil
		}
		if !CanTransition(proc.Status, target) {
			// Extraction has not finished (or already errored); review
			// outcomes do not override the extraction lifecycle.
			return proc.Status, nil
		}

		updated, err := s.processes.UpdateStatusCAS(ctx, processID, target, nil, proc.Version)
		if err != nil {
			return "", &PersistenceError{Op: "update process status", Err: err}
		}
		if updated {
			return target, nil
		}

		s.logger.Debug("status_recompute_conflict",
			zap.String("process_id", processID.String()),
			zap.Int("attempt", attempt+1),
		)
	}
	return "", &PersistenceError{Op: "update process status", Err: errors.New("version conflict retries exhausted")}
}
