package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/pmorelli/braindump/internal/models"
)

func TestApproveItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	procID := env.seedProcess(models.ProcessStatusProcessed)
	itemID := env.items.add(procID, "buy milk")
	env.items.add(procID, "call the dentist")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+itemID.String()+"/approve", nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	var result struct {
		TaskID        string               `json:"task_id"`
		ProcessStatus models.ProcessStatus `json:"process_status"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.TaskID == "" {
		t.Error("task ID is empty")
	}
	// One item still pending, so the process stays in review.
	if result.ProcessStatus != models.ProcessStatusProcessed {
		t.Errorf("process status = %q, want %q", result.ProcessStatus, models.ProcessStatusProcessed)
	}

	if env.pusher.pushCount() != 1 {
		t.Fatalf("pushed %d tasks, want 1", env.pusher.pushCount())
	}
	if got := env.pusher.pushes[0].token; got != "tok-abc" {
		t.Errorf("push used token %q, want %q", got, "tok-abc")
	}
}

func TestApproveItem_LastItemAcceptsProcess(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	procID := env.seedProcess(models.ProcessStatusProcessed)
	itemID := env.items.add(procID, "buy milk")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+itemID.String()+"/approve", nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := env.procs.statusOf(procID); got != models.ProcessStatusAccepted {
		t.Errorf("process status = %q, want %q", got, models.ProcessStatusAccepted)
	}
}

func TestApproveItem_NoCredential(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.creds.err = errors.New("no credential")
	procID := env.seedProcess(models.ProcessStatusProcessed)
	itemID := env.items.add(procID, "buy milk")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+itemID.String()+"/approve", nil)
	rec := env.do(req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if env.pusher.pushCount() != 0 {
		t.Errorf("pushed %d tasks without a credential, want 0", env.pusher.pushCount())
	}
}

func TestApproveItem_PushFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.pusher.err = errors.New("todoist is down")
	procID := env.seedProcess(models.ProcessStatusProcessed)
	itemID := env.items.add(procID, "buy milk")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+itemID.String()+"/approve", nil)
	rec := env.do(req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}

	// The item stays pending so the user can retry.
	item, err := env.items.GetByID(req.Context(), itemID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if item.Approval != models.ApprovalPending {
		t.Errorf("approval = %q after failed push, want %q", item.Approval, models.ApprovalPending)
	}
}

func TestApproveItem_AlreadyResolved(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	procID := env.seedProcess(models.ProcessStatusProcessed)
	itemID := env.items.add(procID, "buy milk")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+itemID.String()+"/approve", nil)
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("first approve status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/items/"+itemID.String()+"/approve", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second approve status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if env.pusher.pushCount() != 1 {
		t.Errorf("pushed %d tasks, want 1", env.pusher.pushCount())
	}
}

func TestRejectItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	procID := env.seedProcess(models.ProcessStatusProcessed)
	itemID := env.items.add(procID, "buy milk")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/"+itemID.String()+"/reject", nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	var result RejectItemResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	// A rejection resolves the last pending item but the process never
	// becomes accepted with a rejected item in it.
	if result.ProcessStatus != models.ProcessStatusProcessed {
		t.Errorf("process status = %q, want %q", result.ProcessStatus, models.ProcessStatusProcessed)
	}
	if env.pusher.pushCount() != 0 {
		t.Errorf("rejection pushed %d tasks, want 0", env.pusher.pushCount())
	}
}

func TestItemReview_Authorization(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	procID := env.seedProcess(models.ProcessStatusProcessed)
	itemID := env.items.add(procID, "buy milk")
	stranger := &models.User{ID: uuid.New(), Email: "other@example.com"}

	tests := []struct {
		name     string
		path     string
		as       *models.User
		wantCode int
	}{
		{name: "invalid item id", path: "/api/v1/items/not-a-uuid/approve", wantCode: http.StatusBadRequest},
		{name: "unknown item", path: "/api/v1/items/" + uuid.NewString() + "/approve", wantCode: http.StatusNotFound},
		{name: "other user's item", path: "/api/v1/items/" + itemID.String() + "/approve", as: stranger, wantCode: http.StatusForbidden},
		{name: "other user's reject", path: "/api/v1/items/" + itemID.String() + "/reject", as: stranger, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			var rec *httptest.ResponseRecorder
			if tt.as != nil {
				rec = env.do(req, tt.as)
			} else {
				rec = env.do(req)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if env.pusher.pushCount() != 0 {
				t.Errorf("unauthorized request pushed %d tasks, want 0", env.pusher.pushCount())
			}
		})
	}
}
