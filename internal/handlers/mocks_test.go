package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pmorelli/braindump/internal/database"
	"github.com/pmorelli/braindump/internal/middleware"
	"github.com/pmorelli/braindump/internal/models"
	"github.com/pmorelli/braindump/internal/process"
	"github.com/pmorelli/braindump/internal/queue"
)

// stubProcessRepo is an in-memory ProcessRepositoryInterface for handler tests
type stubProcessRepo struct {
	mu        sync.Mutex
	processes map[uuid.UUID]*models.Process
	getErr    error // returned by GetByID when set
}

func newStubProcessRepo() *stubProcessRepo {
	return &stubProcessRepo{processes: make(map[uuid.UUID]*models.Process)}
}

func (s *stubProcessRepo) Create(ctx context.Context, proc *models.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *proc
	s.processes[proc.ID] = &cp
	return nil
}

func (s *stubProcessRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	proc, ok := s.processes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *proc
	return &cp, nil
}

func (s *stubProcessRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Process
	for _, proc := range s.processes {
		if proc.UserID == userID {
			cp := *proc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubProcessRepo) UpdateStatusCAS(ctx context.Context, id uuid.UUID, status models.ProcessStatus, errorMessage *string, expectedVersion int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proc, ok := s.processes[id]
	if !ok || proc.Version != expectedVersion {
		return false, nil
	}
	proc.Status = status
	proc.ErrorMessage = errorMessage
	proc.Version++
	proc.UpdatedAt = time.Now()
	return true, nil
}

func (s *stubProcessRepo) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proc, ok := s.processes[id]
	if !ok || proc.UserID != userID {
		return fmt.Errorf("process not found: %w", sql.ErrNoRows)
	}
	delete(s.processes, id)
	return nil
}

func (s *stubProcessRepo) statusOf(id uuid.UUID) models.ProcessStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processes[id].Status
}

var _ database.ProcessRepositoryInterface = (*stubProcessRepo)(nil)

// stubItemRepo is an in-memory TodoItemRepositoryInterface for handler tests
type stubItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.TodoItem
}

func newStubItemRepo() *stubItemRepo {
	return &stubItemRepo{items: make(map[uuid.UUID]*models.TodoItem)}
}

func (s *stubItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *item
	return &cp, nil
}

func (s *stubItemRepo) CreateBatch(ctx context.Context, items []*models.TodoItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		cp := *item
		s.items[item.ID] = &cp
	}
	return nil
}

func (s *stubItemRepo) GetByProcessID(ctx context.Context, processID uuid.UUID) ([]*models.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TodoItem
	for _, item := range s.items {
		if item.ProcessID == processID {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubItemRepo) GetPendingByProcessID(ctx context.Context, processID uuid.UUID) ([]*models.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TodoItem
	for _, item := range s.items {
		if item.ProcessID == processID && item.Approval == models.ApprovalPending {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubItemRepo) SetApproval(ctx context.Context, id uuid.UUID, state models.ApprovalState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.Approval != models.ApprovalPending {
		return false, nil
	}
	item.Approval = state
	return true, nil
}

func (s *stubItemRepo) CountByApproval(ctx context.Context, processID uuid.UUID) (pending, approved, rejected int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
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

func (s *stubItemRepo) add(processID uuid.UUID, content string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.items[id] = &models.TodoItem{
		ID:        id,
		ProcessID: processID,
		Content:   content,
		Priority:  models.DefaultPriority,
		Approval:  models.ApprovalPending,
		CreatedAt: time.Now(),
	}
	return id
}

var _ database.TodoItemRepositoryInterface = (*stubItemRepo)(nil)

// stubCredRepo returns a fixed access token or an error
type stubCredRepo struct {
	token string
	err   error
}

func (s *stubCredRepo) GetAccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func (s *stubCredRepo) SetAccessToken(ctx context.Context, userID uuid.UUID, accessToken string) error {
	s.token = accessToken
	return nil
}

var _ database.CredentialRepositoryInterface = (*stubCredRepo)(nil)

type pushRecord struct {
	token   string
	content string
}

// stubPusher records pushes and can fail on demand
type stubPusher struct {
	mu     sync.Mutex
	pushes []pushRecord
	err    error
}

func (s *stubPusher) Push(ctx context.Context, accessToken, content string, priority int, dueDate *time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.pushes = append(s.pushes, pushRecord{token: accessToken, content: content})
	return fmt.Sprintf("task-%d", len(s.pushes)), nil
}

func (s *stubPusher) pushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushes)
}

var _ process.Pusher = (*stubPusher)(nil)

// stubExtractor returns fixed candidates
type stubExtractor struct {
	candidates []models.TodoCandidate
	err        error
}

func (s *stubExtractor) Extract(ctx context.Context, text string) ([]models.TodoCandidate, error) {
	return s.candidates, s.err
}

var _ process.Extractor = (*stubExtractor)(nil)

// stubJobQueue records enqueued jobs
type stubJobQueue struct {
	mu         sync.Mutex
	enqueued   []*queue.Job
	enqueueErr error
}

func (s *stubJobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

func (s *stubJobQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, nil
}

func (s *stubJobQueue) Close() error                          { return nil }
func (s *stubJobQueue) HealthCheck(ctx context.Context) error { return nil }

func (s *stubJobQueue) enqueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enqueued)
}

var _ queue.JobQueue = (*stubJobQueue)(nil)

// testEnv wires the handlers under test over in-memory stubs
type testEnv struct {
	procs  *stubProcessRepo
	items  *stubItemRepo
	creds  *stubCredRepo
	pusher *stubPusher
	queue  *stubJobQueue
	router *mux.Router
	user   *models.User
}

func newTestEnv() *testEnv {
	env := &testEnv{
		procs:  newStubProcessRepo(),
		items:  newStubItemRepo(),
		creds:  &stubCredRepo{token: "tok-abc"},
		pusher: &stubPusher{},
		queue:  &stubJobQueue{},
		user:   &models.User{ID: uuid.New(), Email: "user@example.com"},
	}

	logger := zap.NewNop()
	svc := process.NewService(env.procs, env.items, &stubExtractor{}, env.pusher, logger)
	watcher := process.NewWatcher(env.procs, 5*time.Millisecond, logger)

	env.router = mux.NewRouter()
	processHandler := NewProcessHandler(svc, env.procs, env.creds, env.queue, watcher, logger)
	processHandler.RegisterRoutes(env.router.PathPrefix("/api/v1/processes").Subrouter())
	itemHandler := NewItemHandler(svc, env.items, env.procs, env.creds, logger)
	itemHandler.RegisterRoutes(env.router.PathPrefix("/api/v1/items").Subrouter())

	return env
}

// do runs a request through the router as env.user unless another user is given
func (env *testEnv) do(req *http.Request, as ...*models.User) *httptest.ResponseRecorder {
	user := env.user
	if len(as) > 0 {
		user = as[0]
	}
	req = req.WithContext(middleware.SetUserInContext(req.Context(), user))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

// seedProcess stores a process owned by env.user in the given status
func (env *testEnv) seedProcess(status models.ProcessStatus) uuid.UUID {
	id := uuid.New()
	env.procs.processes[id] = &models.Process{
		ID:        id,
		UserID:    env.user.ID,
		Status:    status,
		Content:   "buy milk and call the dentist",
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return id
}
