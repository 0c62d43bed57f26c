package process

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pmorelli/braindump/internal/database"
	"github.com/pmorelli/braindump/internal/models"
)

// fakeProcessRepo is an in-memory process store with the same CAS semantics
// as the Postgres repository.
type fakeProcessRepo struct {
	mu        sync.Mutex
	processes map[uuid.UUID]*models.Process

	// Optional overrides for failure injection
	getErr    error
	updateErr error
	onGet     func(id uuid.UUID) // fires after a read, before the copy is returned

	updateCalls int
}

func newFakeProcessRepo() *fakeProcessRepo {
	return &fakeProcessRepo{processes: make(map[uuid.UUID]*models.Process)}
}

func (f *fakeProcessRepo) Create(ctx context.Context, proc *models.Process) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *proc
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.processes[proc.ID] = &cp
	return nil
}

func (f *fakeProcessRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	proc, ok := f.processes[id]
	if !ok {
		return nil, fmt.Errorf("process not found: %w", sql.ErrNoRows)
	}
	cp := *proc
	if f.onGet != nil {
		f.onGet(id)
	}
	return &cp, nil
}

func (f *fakeProcessRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Process
	for _, proc := range f.processes {
		if proc.UserID == userID {
			cp := *proc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProcessRepo) UpdateStatusCAS(ctx context.Context, id uuid.UUID, status models.ProcessStatus, errorMessage *string, expectedVersion int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return false, f.updateErr
	}
	proc, ok := f.processes[id]
	if !ok || proc.Version != expectedVersion {
		return false, nil
	}
	proc.Status = status
	proc.ErrorMessage = errorMessage
	proc.Version++
	proc.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeProcessRepo) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	proc, ok := f.processes[id]
	if !ok || proc.UserID != userID {
		return fmt.Errorf("process not found: %w", sql.ErrNoRows)
	}
	delete(f.processes, id)
	return nil
}

func (f *fakeProcessRepo) statusOf(id uuid.UUID) models.ProcessStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processes[id].Status
}

var _ database.ProcessRepositoryInterface = (*fakeProcessRepo)(nil)

// fakeItemRepo is an in-memory item store enforcing the one-way approval
// transition the same way the Postgres repository does.
type fakeItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.TodoItem

	createErr   error
	setApproval func(id uuid.UUID, state models.ApprovalState) // observation hook
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[uuid.UUID]*models.TodoItem)}
}

func (f *fakeItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TodoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("todo item not found: %w", sql.ErrNoRows)
	}
	cp := *item
	return &cp, nil
}

func (f *fakeItemRepo) CreateBatch(ctx context.Context, items []*models.TodoItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, item := range items {
		cp := *item
		f.items[item.ID] = &cp
	}
	return nil
}

func (f *fakeItemRepo) GetByProcessID(ctx context.Context, processID uuid.UUID) ([]*models.TodoItem, error) {
	return f.filter(processID, func(item *models.TodoItem) bool { return true }), nil
}

func (f *fakeItemRepo) GetPendingByProcessID(ctx context.Context, processID uuid.UUID) ([]*models.TodoItem, error) {
	return f.filter(processID, func(item *models.TodoItem) bool {
		return item.Approval == models.ApprovalPending
	}), nil
}

func (f *fakeItemRepo) filter(processID uuid.UUID, keep func(*models.TodoItem) bool) []*models.TodoItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TodoItem
	for _, item := range f.items {
		if item.ProcessID == processID && keep(item) {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeItemRepo) SetApproval(ctx context.Context, id uuid.UUID, state models.ApprovalState) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return false, fmt.Errorf("todo item not found: %w", sql.ErrNoRows)
	}
	if item.Approval != models.ApprovalPending {
		return false, nil
	}
	item.Approval = state
	if f.setApproval != nil {
		f.setApproval(id, state)
	}
	return true, nil
}

func (f *fakeItemRepo) CountByApproval(ctx context.Context, processID uuid.UUID) (pending, approved, rejected int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ProcessID != processID {
			continue
		}
		switch item.Approval {
		case models.ApprovalApproved:
			approved++
		case models.ApprovalRejected:
			rejected++
		default:
			pending++
		}
	}
	return pending, approved, rejected, nil
}

func (f *fakeItemRepo) add(item *models.TodoItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *item
	f.items[item.ID] = &cp
}

var _ database.TodoItemRepositoryInterface = (*fakeItemRepo)(nil)

// mockExtractor returns canned candidates or an error
type mockExtractor struct {
	mu         sync.Mutex
	candidates []models.TodoCandidate
	err        error
	calls      int
	onExtract  func() // fires during extraction, between claim and finish
}

func (m *mockExtractor) Extract(ctx context.Context, text string) ([]models.TodoCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.onExtract != nil {
		m.onExtract()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

// mockPusher records pushes; failFor makes pushes for specific content fail
type mockPusher struct {
	mu      sync.Mutex
	pushes  []pushCall
	failFor map[string]error
	err     error
}

type pushCall struct {
	accessToken string
	content     string
	priority    int
	dueDate     *time.Time
}

func (m *mockPusher) Push(ctx context.Context, accessToken, content string, priority int, dueDate *time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if err, ok := m.failFor[content]; ok {
		return "", err
	}
	m.pushes = append(m.pushes, pushCall{accessToken: accessToken, content: content, priority: priority, dueDate: dueDate})
	return fmt.Sprintf("task-%d", len(m.pushes)), nil
}

func (m *mockPusher) pushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pushes)
}
