package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/pmorelli/braindump/internal/models"
)

// ProcessRepositoryInterface defines the interface for process repository
// operations. This interface enables better testability by allowing mock
// implementations.
type ProcessRepositoryInterface interface {
	Create(ctx context.Context, proc *models.Process) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Process, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Process, error)
	// UpdateStatusCAS updates status, error message, updated_at and bumps the
	// version, but only if the stored version still matches expectedVersion.
	// Returns false without error when another writer got there first.
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, status models.ProcessStatus, errorMessage *string, expectedVersion int) (bool, error)
	Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

// TodoItemRepositoryInterface defines the interface for todo item repository operations
type TodoItemRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.TodoItem, error)
	CreateBatch(ctx context.Context, items []*models.TodoItem) error
	GetByProcessID(ctx context.Context, processID uuid.UUID) ([]*models.TodoItem, error)
	GetPendingByProcessID(ctx context.Context, processID uuid.UUID) ([]*models.TodoItem, error)
	// SetApproval resolves a pending item. Returns false without error when
	// the item was already resolved (the unset -> resolved transition is
	// one-way and enforced at the row level).
	SetApproval(ctx context.Context, id uuid.UUID, state models.ApprovalState) (bool, error)
	CountByApproval(ctx context.Context, processID uuid.UUID) (pending, approved, rejected int, err error)
}

// CredentialRepositoryInterface defines the interface for external tracker credential lookups
type CredentialRepositoryInterface interface {
	GetAccessToken(ctx context.Context, userID uuid.UUID) (string, error)
	SetAccessToken(ctx context.Context, userID uuid.UUID, accessToken string) error
}

// Ensure concrete types implement the interfaces
var (
	_ ProcessRepositoryInterface    = (*ProcessRepository)(nil)
	_ TodoItemRepositoryInterface   = (*TodoItemRepository)(nil)
	_ CredentialRepositoryInterface = (*CredentialRepository)(nil)
)
