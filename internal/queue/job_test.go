package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewExtractionJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	processID := uuid.New()

	job := NewExtractionJob(userID, processID)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeExtraction {
		t.Errorf("Expected job type to be %s, got %s", JobTypeExtraction, job.Type)
	}
	if job.UserID != userID {
		t.Errorf("Expected user ID to be %s, got %s", userID, job.UserID)
	}
	if job.ProcessID != processID {
		t.Errorf("Expected process ID to be %s, got %s", processID, job.ProcessID)
	}
	if job.Metadata == nil {
		t.Error("Expected metadata to be initialized")
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count to be 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != 3 {
		t.Errorf("Expected max retries to be 3, got %d", job.MaxRetries)
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{"no time constraints", nil, nil, true},
		{"not before in the past", &past, nil, true},
		{"not before in the future", &future, nil, false},
		{"not after in the future", nil, &future, true},
		{"not after in the past", nil, &past, false},
		{"inside window", &past, &future, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{
				ID:        uuid.New(),
				Type:      JobTypeExtraction,
				UserID:    uuid.New(),
				ProcessID: uuid.New(),
				NotBefore: tt.notBefore,
				NotAfter:  tt.notAfter,
			}
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Minute)

	if (&Job{}).IsExpired() {
		t.Error("job without NotAfter reported expired")
	}
	if (&Job{NotAfter: &future}).IsExpired() {
		t.Error("job with future NotAfter reported expired")
	}
	if !(&Job{NotAfter: &past}).IsExpired() {
		t.Error("job with past NotAfter not reported expired")
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	job := NewExtractionJob(uuid.New(), uuid.New())

	for i := 0; i < job.MaxRetries; i++ {
		if !job.CanRetry() {
			t.Fatalf("CanRetry() = false at retry %d of %d", i, job.MaxRetries)
		}
		job.IncrementRetry()
	}
	if job.CanRetry() {
		t.Errorf("CanRetry() = true after %d retries", job.RetryCount)
	}
}
