package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmorelli/braindump/internal/queue"
)

type mockMessage struct {
	job         *queue.Job
	acked       bool
	nacked      bool
	nackRequeue bool
}

func (m *mockMessage) Ack() error { m.acked = true; return nil }
func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.nackRequeue = requeue
	return nil
}
func (m *mockMessage) GetJob() *queue.Job { return m.job }

var _ queue.MessageInterface = (*mockMessage)(nil)

type mockJobQueue struct {
	enqueued   []*queue.Job
	enqueueErr error
}

func (m *mockJobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockJobQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, nil
}

func (m *mockJobQueue) Close() error                          { return nil }
func (m *mockJobQueue) HealthCheck(ctx context.Context) error { return nil }

var _ queue.JobQueue = (*mockJobQueue)(nil)

func newTestExtractor(jobQueue queue.JobQueue) *Extractor {
	return NewExtractor(nil, jobQueue, zap.NewNop())
}

func TestProcessJob_Success(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(&mockJobQueue{})
	calls := 0
	e.RegisterProcessor(queue.JobTypeExtraction, func(ctx context.Context, job *queue.Job) error {
		calls++
		return nil
	}, true)

	msg := &mockMessage{job: queue.NewExtractionJob(uuid.New(), uuid.New())}
	if err := e.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("processor called %d times, want 1", calls)
	}
	if !msg.acked || msg.nacked {
		t.Errorf("acked=%v nacked=%v, want ack only", msg.acked, msg.nacked)
	}
}

func TestProcessJob_NotReadyIsAckedWithoutProcessing(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(&mockJobQueue{})
	calls := 0
	e.RegisterProcessor(queue.JobTypeExtraction, func(ctx context.Context, job *queue.Job) error {
		calls++
		return nil
	}, true)

	job := queue.NewExtractionJob(uuid.New(), uuid.New())
	notBefore := time.Now().Add(time.Hour)
	job.NotBefore = &notBefore

	msg := &mockMessage{job: job}
	if err := e.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob returned error: %v", err)
	}
	if calls != 0 {
		t.Errorf("processor called %d times for a not-ready job, want 0", calls)
	}
	if !msg.acked {
		t.Error("not-ready job should be acked")
	}
}

func TestProcessJob_UnknownTypeIsNacked(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(&mockJobQueue{})

	job := queue.NewExtractionJob(uuid.New(), uuid.New())
	job.Type = queue.JobType("mystery")

	msg := &mockMessage{job: job}
	if err := e.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("ProcessJob returned nil for unknown job type, want error")
	}
	if !msg.nacked || msg.nackRequeue {
		t.Errorf("nacked=%v requeue=%v, want nack without requeue", msg.nacked, msg.nackRequeue)
	}
}

func TestProcessJob_FailureGoesToDLQ(t *testing.T) {
	t.Parallel()

	jobQueue := &mockJobQueue{}
	e := newTestExtractor(jobQueue)
	e.RegisterProcessor(queue.JobTypeExtraction, func(ctx context.Context, job *queue.Job) error {
		return errors.New("extraction blew up")
	}, true)

	msg := &mockMessage{job: queue.NewExtractionJob(uuid.New(), uuid.New())}
	if err := e.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("ProcessJob returned nil, want error")
	}
	if !msg.nacked || msg.nackRequeue {
		t.Errorf("nacked=%v requeue=%v, want nack without requeue", msg.nacked, msg.nackRequeue)
	}
	if len(jobQueue.enqueued) != 0 {
		t.Errorf("non-retryable failure re-enqueued %d jobs, want 0", len(jobQueue.enqueued))
	}
}

func TestProcessJob_RateLimitIsDelayed(t *testing.T) {
	t.Parallel()

	jobQueue := &mockJobQueue{}
	e := newTestExtractor(jobQueue)
	e.RegisterProcessor(queue.JobTypeExtraction, func(ctx context.Context, job *queue.Job) error {
		return errors.New("429 too many requests: rate limit reached")
	}, true)

	job := queue.NewExtractionJob(uuid.New(), uuid.New())
	msg := &mockMessage{job: job}

	if err := e.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob returned error for a retryable failure: %v", err)
	}
	if !msg.acked {
		t.Error("message not acked before re-enqueue")
	}
	if len(jobQueue.enqueued) != 1 {
		t.Fatalf("re-enqueued %d jobs, want 1", len(jobQueue.enqueued))
	}

	delayed := jobQueue.enqueued[0]
	if delayed.RetryCount != job.RetryCount+1 {
		t.Errorf("retry count = %d, want %d", delayed.RetryCount, job.RetryCount+1)
	}
	if delayed.NotBefore == nil || !delayed.NotBefore.After(time.Now()) {
		t.Errorf("delayed job NotBefore = %v, want a future time", delayed.NotBefore)
	}
	if delayed.ProcessID != job.ProcessID {
		t.Errorf("delayed job process ID = %v, want %v", delayed.ProcessID, job.ProcessID)
	}
}

func TestProcessJob_RateLimitOutOfRetries(t *testing.T) {
	t.Parallel()

	jobQueue := &mockJobQueue{}
	e := newTestExtractor(jobQueue)
	e.RegisterProcessor(queue.JobTypeExtraction, func(ctx context.Context, job *queue.Job) error {
		return errors.New("429 too many requests")
	}, true)

	job := queue.NewExtractionJob(uuid.New(), uuid.New())
	job.RetryCount = job.MaxRetries

	msg := &mockMessage{job: job}
	if err := e.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("ProcessJob returned nil with retries exhausted, want error")
	}
	if !msg.nacked {
		t.Error("exhausted job should be nacked to the DLQ")
	}
	if len(jobQueue.enqueued) != 0 {
		t.Errorf("exhausted job re-enqueued %d times, want 0", len(jobQueue.enqueued))
	}
}

func TestProcessExtractionJob_RequiresProcessID(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(&mockJobQueue{})

	job := queue.NewExtractionJob(uuid.New(), uuid.Nil)
	if err := e.ProcessExtractionJob(context.Background(), job); err == nil {
		t.Fatal("ProcessExtractionJob accepted a job without a process ID")
	}
}
