package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pmorelli/braindump/internal/models"
)

// ProcessRepository handles process database operations
type ProcessRepository struct {
	db *DB
}

// NewProcessRepository creates a new process repository
func NewProcessRepository(db *DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

// Create creates a new process
func (r *ProcessRepository) Create(ctx context.Context, proc *models.Process) error {
	query := `
		INSERT INTO processes (id, user_id, status, content, error_message, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING version, created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		proc.ID,
		proc.UserID,
		proc.Status,
		proc.Content,
		proc.ErrorMessage,
		0,
		now,
		now,
	).Scan(&proc.Version, &proc.CreatedAt, &proc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create process: %w", err)
	}

	return nil
}

// GetByID retrieves a process by ID
func (r *ProcessRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Process, error) {
	proc := &models.Process{}
	var errorMessage sql.NullString

	query := `
		SELECT id, user_id, status, content, error_message, version, created_at, updated_at
		FROM processes
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&proc.ID,
		&proc.UserID,
		&proc.Status,
		&proc.Content,
		&errorMessage,
		&proc.Version,
		&proc.CreatedAt,
		&proc.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("process not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get process: %w", err)
	}

	if errorMessage.Valid {
		proc.ErrorMessage = &errorMessage.String
	}

	return proc, nil
}

// GetByUserID retrieves all processes owned by a user, newest first
func (r *ProcessRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Process, error) {
	query := `
		SELECT id, user_id, status, content, error_message, version, created_at, updated_at
		FROM processes
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query processes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			_ = err
		}
	}()

	var processes []*models.Process
	for rows.Next() {
		proc := &models.Process{}
		var errorMessage sql.NullString

		err := rows.Scan(
			&proc.ID,
			&proc.UserID,
			&proc.Status,
			&proc.Content,
			&errorMessage,
			&proc.Version,
			&proc.CreatedAt,
			&proc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}

		if errorMessage.Valid {
			proc.ErrorMessage = &errorMessage.String
		}

		processes = append(processes, proc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processes: %w", err)
	}

	return processes, nil
}

// UpdateStatusCAS performs an optimistic read-modify-write of the process
// status. The update only applies when the stored version still matches
// expectedVersion; a lost race returns (false, nil) so the caller can
// re-read and retry. Content is never touched here; it is immutable.
func (r *ProcessRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, status models.ProcessStatus, errorMessage *string, expectedVersion int) (bool, error) {
	query := `
		UPDATE processes
		SET status = $2, error_message = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $5
	`

	result, err := r.db.ExecContext(ctx, query, id, status, errorMessage, time.Now(), expectedVersion)
	if err != nil {
		return false, fmt.Errorf("failed to update process status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Delete removes a process owned by the user. Items go with it via the
// ON DELETE CASCADE constraint on todo_items.process_id.
func (r *ProcessRepository) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	query := `DELETE FROM processes WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete process: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("process not found: %w", sql.ErrNoRows)
	}

	return nil
}
