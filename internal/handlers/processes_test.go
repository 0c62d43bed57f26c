package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/pmorelli/braindump/internal/models"
)

// envelope mirrors the respondJSON/respondJSONError wrapping
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return env
}

func TestCreateProcess(t *testing.T) {
	t.Parallel()

	env := newTestEnv()

	body := bytes.NewBufferString(`{"content": "  buy milk\ncall the dentist  "}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/processes", body)
	rec := env.do(req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	var proc models.Process
	if err := json.Unmarshal(resp.Data, &proc); err != nil {
		t.Fatalf("failed to decode process: %v", err)
	}

	if proc.Status != models.ProcessStatusIncomplete {
		t.Errorf("status = %q, want %q", proc.Status, models.ProcessStatusIncomplete)
	}
	if proc.UserID != env.user.ID {
		t.Errorf("user ID = %v, want %v", proc.UserID, env.user.ID)
	}
	if proc.Content != "buy milk\ncall the dentist" {
		t.Errorf("content = %q, want sanitized input", proc.Content)
	}

	if env.queue.enqueuedCount() != 1 {
		t.Fatalf("enqueued %d jobs, want 1", env.queue.enqueuedCount())
	}
	if got := env.queue.enqueued[0].ProcessID; got != proc.ID {
		t.Errorf("enqueued job process ID = %v, want %v", got, proc.ID)
	}
}

func TestCreateProcess_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "empty content", body: `{"content": ""}`},
		{name: "whitespace only", body: `{"content": "   "}`},
		{name: "missing content", body: `{}`},
		{name: "malformed JSON", body: `{"content": `},
		{name: "too long", body: `{"content": "` + strings.Repeat("a", MaxContentLength+1) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/processes", bytes.NewBufferString(tt.body))
			rec := env.do(req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if env.queue.enqueuedCount() != 0 {
				t.Errorf("enqueued %d jobs for invalid input, want 0", env.queue.enqueuedCount())
			}
		})
	}
}

func TestCreateProcess_EnqueueFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.queue.enqueueErr = errors.New("broker unavailable")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/processes", bytes.NewBufferString(`{"content": "buy milk"}`))
	rec := env.do(req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestGetProcess(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := env.seedProcess(models.ProcessStatusProcessed)
	env.items.add(id, "buy milk")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes/"+id.String(), nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	var pr ProcessResponse
	if err := json.Unmarshal(resp.Data, &pr); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if pr.Process.ID != id {
		t.Errorf("process ID = %v, want %v", pr.Process.ID, id)
	}
	if len(pr.Items) != 1 {
		t.Errorf("items = %d, want 1", len(pr.Items))
	}
}

func TestGetProcess_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := env.seedProcess(models.ProcessStatusProcessed)
	stranger := &models.User{ID: uuid.New(), Email: "other@example.com"}

	tests := []struct {
		name     string
		path     string
		as       *models.User
		wantCode int
	}{
		{name: "invalid id", path: "/api/v1/processes/not-a-uuid", wantCode: http.StatusBadRequest},
		{name: "unknown id", path: "/api/v1/processes/" + uuid.NewString(), wantCode: http.StatusNotFound},
		{name: "other user's process", path: "/api/v1/processes/" + id.String(), as: stranger, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			var rec *httptest.ResponseRecorder
			if tt.as != nil {
				rec = env.do(req, tt.as)
			} else {
				rec = env.do(req)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestListProcesses_EmptyIsArray(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes", nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	resp := decodeEnvelope(t, rec)
	var processes []*models.Process
	if err := json.Unmarshal(resp.Data, &processes); err != nil {
		t.Fatalf("failed to decode processes: %v", err)
	}
	if processes == nil {
		t.Error("data decoded to nil, want an empty array")
	}
}

func TestDeleteProcess(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := env.seedProcess(models.ProcessStatusProcessed)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/processes/"+id.String(), nil)
	rec := env.do(req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	// The row is gone; a second delete reports not found.
	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/v1/processes/"+id.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteProcess_OtherUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := env.seedProcess(models.ProcessStatusProcessed)
	stranger := &models.User{ID: uuid.New(), Email: "other@example.com"}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/processes/"+id.String(), nil)
	rec := env.do(req, stranger)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if _, err := env.procs.GetByID(req.Context(), id); err != nil {
		t.Error("process was deleted by a non-owner")
	}
}

func TestStreamEvents_TerminalProcess(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := env.seedProcess(models.ProcessStatusProcessed)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes/"+id.String()+"/events", nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: status") {
		t.Errorf("body %q missing status event", body)
	}
	if !strings.Contains(body, `"status":"processed"`) {
		t.Errorf("body %q missing terminal snapshot", body)
	}
}

func TestStreamEvents_MissingProcess(t *testing.T) {
	t.Parallel()

	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes/"+uuid.NewString()+"/events", nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "Process not found") {
		t.Errorf("body %q missing terminal error snapshot", rec.Body.String())
	}
}

func TestStreamEvents_OtherUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := env.seedProcess(models.ProcessStatusProcessed)
	stranger := &models.User{ID: uuid.New(), Email: "other@example.com"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes/"+id.String()+"/events", nil)
	rec := env.do(req, stranger)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if strings.Contains(rec.Body.String(), "event: status") {
		t.Error("snapshots streamed to a non-owner")
	}
}

func TestStreamEvents_OwnershipCheckFailsClosed(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := env.seedProcess(models.ProcessStatusProcessed)
	env.procs.getErr = errors.New("connection reset")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes/"+id.String()+"/events", nil)
	rec := env.do(req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d when ownership cannot be verified", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "event: status") {
		t.Error("snapshots streamed without a verified owner")
	}
}

func TestApproveAll(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := env.seedProcess(models.ProcessStatusProcessed)
	env.items.add(id, "buy milk")
	env.items.add(id, "call the dentist")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/processes/"+id.String()+"/approve-all", nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	var summary struct {
		Approved      int                  `json:"approved"`
		ProcessStatus models.ProcessStatus `json:"process_status"`
	}
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if summary.Approved != 2 {
		t.Errorf("approved = %d, want 2", summary.Approved)
	}
	if summary.ProcessStatus != models.ProcessStatusAccepted {
		t.Errorf("process status = %q, want %q", summary.ProcessStatus, models.ProcessStatusAccepted)
	}
	if env.pusher.pushCount() != 2 {
		t.Errorf("pushed %d tasks, want 2", env.pusher.pushCount())
	}
}

func TestApproveAll_NoCredential(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.creds.err = errors.New("no credential")
	id := env.seedProcess(models.ProcessStatusProcessed)
	env.items.add(id, "buy milk")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/processes/"+id.String()+"/approve-all", nil)
	rec := env.do(req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if env.pusher.pushCount() != 0 {
		t.Errorf("pushed %d tasks without a credential, want 0", env.pusher.pushCount())
	}
}
