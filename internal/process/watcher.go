package process

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pmorelli/braindump/internal/database"
	"github.com/pmorelli/braindump/internal/models"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often the watcher re-reads process status
const DefaultPollInterval = 2 * time.Second

// Watcher is a read-only, best-effort status poller. It repeatedly reads a
// process until it observes a terminal status, the process disappears, or
// the caller cancels. Detection is status-based; there is no push channel
// from the state machine.
type Watcher struct {
	processes database.ProcessRepositoryInterface
	interval  time.Duration
	logger    *zap.Logger
}

// NewWatcher creates a status watcher. A non-positive interval falls back
// to DefaultPollInterval.
func NewWatcher(processes database.ProcessRepositoryInterface, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{processes: processes, interval: interval, logger: logger}
}

// Watch returns a channel of status snapshots for one process. A snapshot
// is emitted whenever the observed status changes; the channel closes after
// a terminal status, after the process vanishes (reported as a terminal
// error snapshot), or when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, processID uuid.UUID) <-chan models.StatusSnapshot {
	out := make(chan models.StatusSnapshot, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		var lastStatus models.ProcessStatus
		for {
			proc, err := w.processes.GetByID(ctx, processID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					msg := "Process not found"
					w.emit(ctx, out, models.StatusSnapshot{
						Status:       models.ProcessStatusError,
						ErrorMessage: &msg,
						UpdatedAt:    time.Now(),
					})
					return
				}
				// Transient read failure: keep polling
				w.logger.Warn("status_poll_failed",
					zap.String("process_id", processID.String()),
					zap.Error(err),
				)
			} else if proc.Status != lastStatus {
				if !w.emit(ctx, out, proc.Snapshot()) {
					return
				}
				lastStatus = proc.Status
				if proc.Status.IsTerminal() {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

// emit sends a snapshot unless the caller cancelled. Reports whether the
// send happened.
func (w *Watcher) emit(ctx context.Context, out chan<- models.StatusSnapshot, snap models.StatusSnapshot) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- snap:
		return true
	}
}
