package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pmorelli/braindump/internal/database"
	"github.com/pmorelli/braindump/internal/middleware"
	"github.com/pmorelli/braindump/internal/models"
	"github.com/pmorelli/braindump/internal/process"
)

// ItemHandler handles per-item review requests
type ItemHandler struct {
	service     *process.Service
	itemRepo    database.TodoItemRepositoryInterface
	processRepo database.ProcessRepositoryInterface
	credRepo    database.CredentialRepositoryInterface
	logger      *zap.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(
	service *process.Service,
	itemRepo database.TodoItemRepositoryInterface,
	processRepo database.ProcessRepositoryInterface,
	credRepo database.CredentialRepositoryInterface,
	logger *zap.Logger,
) *ItemHandler {
	return &ItemHandler{
		service:     service,
		itemRepo:    itemRepo,
		processRepo: processRepo,
		credRepo:    credRepo,
		logger:      logger,
	}
}

// RegisterRoutes registers item routes on the given router
// The router should already have the /items prefix
func (h *ItemHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/approve", h.ApproveItem).Methods("POST")
	r.HandleFunc("/{id}/reject", h.RejectItem).Methods("POST")
}

// RejectItemResponse reports the process status after a rejection
type RejectItemResponse struct {
	ProcessStatus models.ProcessStatus `json:"process_status"`
}

// ApproveItem pushes a pending item to the external tracker and marks it
// approved. A failed push leaves the item pending.
func (h *ItemHandler) ApproveItem(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	itemID, ok := h.authorizeItem(w, r, user.ID)
	if !ok {
		return
	}

	ctx := r.Context()
	accessToken, err := h.credRepo.GetAccessToken(ctx, user.ID)
	if err != nil {
		respondJSONError(w, http.StatusConflict, "Conflict", "Todoist account not connected")
		return
	}

	result, err := h.service.ApproveItem(ctx, itemID, accessToken)
	if err != nil {
		h.respondReviewError(w, err, "Failed to approve item")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// RejectItem marks a pending item rejected without pushing it anywhere
func (h *ItemHandler) RejectItem(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	itemID, ok := h.authorizeItem(w, r, user.ID)
	if !ok {
		return
	}

	status, err := h.service.RejectItem(r.Context(), itemID)
	if err != nil {
		h.respondReviewError(w, err, "Failed to reject item")
		return
	}

	respondJSON(w, http.StatusOK, RejectItemResponse{ProcessStatus: status})
}

// authorizeItem parses the {id} path variable and verifies the item's parent
// process belongs to the user. Responses are written on failure.
func (h *ItemHandler) authorizeItem(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (uuid.UUID, bool) {
	itemID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid item ID")
		return uuid.Nil, false
	}

	ctx := r.Context()
	item, err := h.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Item not found")
		return uuid.Nil, false
	}

	proc, err := h.processRepo.GetByID(ctx, item.ProcessID)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Process not found")
		return uuid.Nil, false
	}
	if proc.UserID != userID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Item does not belong to user")
		return uuid.Nil, false
	}

	return itemID, true
}

// respondReviewError maps review errors to HTTP responses
func (h *ItemHandler) respondReviewError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case process.IsNotFound(err):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Item not found")
	case errors.Is(err, process.ErrAlreadyResolved):
		respondJSONError(w, http.StatusConflict, "Conflict", "Item has already been approved or rejected")
	case process.IsAdapterError(err):
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to push task to Todoist")
	default:
		h.logger.Error("item_review_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", fallback)
	}
}
