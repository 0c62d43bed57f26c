package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pmorelli/braindump/internal/database"
	"github.com/pmorelli/braindump/internal/middleware"
	"github.com/pmorelli/braindump/internal/models"
	"github.com/pmorelli/braindump/internal/process"
	"github.com/pmorelli/braindump/internal/queue"
	"github.com/pmorelli/braindump/internal/validation"
)

const (
	// MaxContentLength is the maximum length for submitted text
	MaxContentLength = 10000
)

// ProcessHandler handles process lifecycle requests
type ProcessHandler struct {
	service     *process.Service
	processRepo database.ProcessRepositoryInterface
	credRepo    database.CredentialRepositoryInterface
	jobQueue    queue.JobQueue
	watcher     *process.Watcher
	logger      *zap.Logger
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(
	service *process.Service,
	processRepo database.ProcessRepositoryInterface,
	credRepo database.CredentialRepositoryInterface,
	jobQueue queue.JobQueue,
	watcher *process.Watcher,
	logger *zap.Logger,
) *ProcessHandler {
	return &ProcessHandler{
		service:     service,
		processRepo: processRepo,
		credRepo:    credRepo,
		jobQueue:    jobQueue,
		watcher:     watcher,
		logger:      logger,
	}
}

// RegisterRoutes registers process routes on the given router
// The router should already have the /processes prefix
func (h *ProcessHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListProcesses).Methods("GET")
	r.HandleFunc("", h.CreateProcess).Methods("POST")
	r.HandleFunc("/{id}", h.GetProcess).Methods("GET")
	r.HandleFunc("/{id}", h.DeleteProcess).Methods("DELETE")
	r.HandleFunc("/{id}/events", h.StreamEvents).Methods("GET")
	r.HandleFunc("/{id}/approve-all", h.ApproveAll).Methods("POST")
}

// CreateProcessRequest represents a create process request
type CreateProcessRequest struct {
	Content string `json:"content" validate:"required,min=1,max=10000"`
}

// ProcessResponse represents a process with its extracted items
type ProcessResponse struct {
	Process *models.Process    `json:"process"`
	Items   []*models.TodoItem `json:"items"`
}

// CreateProcess accepts submitted text, persists a new process and enqueues
// an extraction job for it
func (h *ProcessHandler) CreateProcess(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req CreateProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if maxBytesErr, ok := err.(*http.MaxBytesError); ok {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if err := validation.Validate.Struct(req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldError := range validationErrors {
				respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", fieldError.Error()))
				return
			}
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return
	}

	req.Content = validation.SanitizeText(req.Content)
	if req.Content == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Content is required and cannot be empty after sanitization")
		return
	}
	if len(req.Content) > MaxContentLength {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Content exceeds maximum length of %d characters", MaxContentLength))
		return
	}

	ctx := r.Context()
	proc, err := h.service.Create(ctx, user.ID, req.Content)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create process")
		return
	}

	job := queue.NewExtractionJob(user.ID, proc.ID)
	if err := h.jobQueue.Enqueue(ctx, job); err != nil {
		// The process exists but extraction will not start; surface that so
		// the client does not wait on a status that never moves.
		h.logger.Error("failed_to_enqueue_extraction_job",
			zap.String("process_id", proc.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to queue extraction")
		return
	}

	respondJSON(w, http.StatusCreated, proc)
}

// ListProcesses lists the authenticated user's processes, newest first
func (h *ProcessHandler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	processes, err := h.processRepo.GetByUserID(r.Context(), user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve processes")
		return
	}
	if processes == nil {
		processes = []*models.Process{}
	}

	respondJSON(w, http.StatusOK, processes)
}

// GetProcess retrieves a process and its items
func (h *ProcessHandler) GetProcess(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := parseIDVar(w, r)
	if !ok {
		return
	}

	proc, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		if process.IsNotFound(err) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Process not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve process")
		return
	}

	if proc.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Process does not belong to user")
		return
	}

	if items == nil {
		items = []*models.TodoItem{}
	}
	respondJSON(w, http.StatusOK, ProcessResponse{Process: proc, Items: items})
}

// DeleteProcess deletes a process and, via cascade, its items
func (h *ProcessHandler) DeleteProcess(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := parseIDVar(w, r)
	if !ok {
		return
	}

	if err := h.processRepo.Delete(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Process not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete process")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StreamEvents streams status snapshots over Server-Sent Events until the
// process reaches a terminal status or the client disconnects
func (h *ProcessHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := parseIDVar(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Streaming not supported")
		return
	}

	// Ownership is checked up front; a process that vanishes mid-stream is
	// reported by the watcher itself as a terminal error snapshot.
	proc, err := h.processRepo.GetByID(r.Context(), id)
	switch {
	case err == nil:
		if proc.UserID != user.ID {
			respondJSONError(w, http.StatusForbidden, "Forbidden", "Process does not belong to user")
			return
		}
	case errors.Is(err, sql.ErrNoRows):
		// Missing process: the watcher emits a terminal error snapshot
	default:
		// Ownership cannot be verified; do not stream
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve process")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snapshot := range h.watcher.Watch(r.Context(), id) {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			h.logger.Error("failed_to_marshal_status_snapshot",
				zap.String("process_id", id.String()),
				zap.Error(err),
			)
			return
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

// ApproveAll approves every pending item of a process, pushing each to the
// external tracker. Push failures stay pending and are reported per item.
func (h *ProcessHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := parseIDVar(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	proc, err := h.processRepo.GetByID(ctx, id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Process not found")
		return
	}
	if proc.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Process does not belong to user")
		return
	}

	accessToken, err := h.credRepo.GetAccessToken(ctx, user.ID)
	if err != nil {
		respondJSONError(w, http.StatusConflict, "Conflict", "Todoist account not connected")
		return
	}

	summary, err := h.service.ApproveAllPending(ctx, id, accessToken)
	if err != nil {
		if process.IsNotFound(err) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Process not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to approve items")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// parseIDVar parses the {id} path variable, writing a 400 on failure
func parseIDVar(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid process ID")
		return uuid.Nil, false
	}
	return id, true
}
