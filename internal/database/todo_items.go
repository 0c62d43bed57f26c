package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pmorelli/braindump/internal/models"
)

// TodoItemRepository handles todo item database operations.
// Approval is stored as a nullable boolean (NULL = pending, true = approved,
// false = rejected), matching the tri-state review model.
type TodoItemRepository struct {
	db *DB
}

// NewTodoItemRepository creates a new todo item repository
func NewTodoItemRepository(db *DB) *TodoItemRepository {
	return &TodoItemRepository{db: db}
}

func approvalToNullBool(state models.ApprovalState) sql.NullBool {
	switch state {
	case models.ApprovalApproved:
		return sql.NullBool{Bool: true, Valid: true}
	case models.ApprovalRejected:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

func approvalFromNullBool(b sql.NullBool) models.ApprovalState {
	switch {
	case !b.Valid:
		return models.ApprovalPending
	case b.Bool:
		return models.ApprovalApproved
	default:
		return models.ApprovalRejected
	}
}

// GetByID retrieves a todo item by ID
func (r *TodoItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TodoItem, error) {
	item := &models.TodoItem{}
	var isApproved sql.NullBool
	var dueDate sql.NullTime

	query := `
		SELECT id, process_id, content, priority, due_date, is_approved, created_at
		FROM todo_items
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.ProcessID,
		&item.Content,
		&item.Priority,
		&dueDate,
		&isApproved,
		&item.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("todo item not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo item: %w", err)
	}

	if dueDate.Valid {
		item.DueDate = &dueDate.Time
	}
	item.Approval = approvalFromNullBool(isApproved)

	return item, nil
}

// CreateBatch inserts all items in one statement. Extraction persists its
// whole candidate batch at once or not at all.
func (r *TodoItemRepository) CreateBatch(ctx context.Context, items []*models.TodoItem) error {
	if len(items) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO todo_items (id, process_id, content, priority, due_date, is_approved, created_at)
		VALUES `)

	args := make([]any, 0, len(items)*7)
	now := time.Now()
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)

		var dueDate sql.NullTime
		if item.DueDate != nil {
			dueDate = sql.NullTime{Time: *item.DueDate, Valid: true}
		}
		args = append(args,
			item.ID,
			item.ProcessID,
			item.Content,
			item.Priority,
			dueDate,
			approvalToNullBool(item.Approval),
			now,
		)
		item.CreatedAt = now
	}

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to create todo items: %w", err)
	}

	return nil
}

// GetByProcessID retrieves all items belonging to a process
func (r *TodoItemRepository) GetByProcessID(ctx context.Context, processID uuid.UUID) ([]*models.TodoItem, error) {
	query := `
		SELECT id, process_id, content, priority, due_date, is_approved, created_at
		FROM todo_items
		WHERE process_id = $1
		ORDER BY created_at, id
	`
	return r.queryItems(ctx, query, processID)
}

// GetPendingByProcessID retrieves items of a process that are still unresolved
func (r *TodoItemRepository) GetPendingByProcessID(ctx context.Context, processID uuid.UUID) ([]*models.TodoItem, error) {
	query := `
		SELECT id, process_id, content, priority, due_date, is_approved, created_at
		FROM todo_items
		WHERE process_id = $1 AND is_approved IS NULL
		ORDER BY created_at, id
	`
	return r.queryItems(ctx, query, processID)
}

func (r *TodoItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]*models.TodoItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query todo items: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			_ = err
		}
	}()

	var items []*models.TodoItem
	for rows.Next() {
		item := &models.TodoItem{}
		var isApproved sql.NullBool
		var dueDate sql.NullTime

		err := rows.Scan(
			&item.ID,
			&item.ProcessID,
			&item.Content,
			&item.Priority,
			&dueDate,
			&isApproved,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo item: %w", err)
		}

		if dueDate.Valid {
			item.DueDate = &dueDate.Time
		}
		item.Approval = approvalFromNullBool(isApproved)

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todo items: %w", err)
	}

	return items, nil
}

// SetApproval resolves a pending item to approved or rejected. The WHERE
// clause only matches unresolved rows, so a second resolution attempt
// returns (false, nil) instead of overwriting the first.
func (r *TodoItemRepository) SetApproval(ctx context.Context, id uuid.UUID, state models.ApprovalState) (bool, error) {
	if !state.Resolved() {
		return false, fmt.Errorf("cannot set approval back to %s", state)
	}

	query := `UPDATE todo_items SET is_approved = $2 WHERE id = $1 AND is_approved IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, approvalToNullBool(state))
	if err != nil {
		return false, fmt.Errorf("failed to set approval: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// CountByApproval returns how many items of a process are pending, approved
// and rejected. The aggregator reads these at decision time.
func (r *TodoItemRepository) CountByApproval(ctx context.Context, processID uuid.UUID) (pending, approved, rejected int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_approved IS NULL),
			COUNT(*) FILTER (WHERE is_approved = TRUE),
			COUNT(*) FILTER (WHERE is_approved = FALSE)
		FROM todo_items
		WHERE process_id = $1
	`

	err = r.db.QueryRowContext(ctx, query, processID).Scan(&pending, &approved, &rejected)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count todo items: %w", err)
	}

	return pending, approved, rejected, nil
}
