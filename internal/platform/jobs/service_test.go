package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryRunLog struct {
	mu       sync.Mutex
	finished map[string]string
	done     chan struct{}
}

func newMemoryRunLog() *memoryRunLog {
	return &memoryRunLog{finished: map[string]string{}, done: make(chan struct{}, 16)}
}

func (m *memoryRunLog) Begin(ctx context.Context, jobType, subject string) (string, error) {
	return subject, nil
}

func (m *memoryRunLog) Finish(ctx context.Context, runID, status string, details []byte) error {
	m.mu.Lock()
	m.finished[runID] = status
	m.mu.Unlock()
	select {
	case m.done <- struct{}{}:
	default:
	}
	return nil
}

func (m *memoryRunLog) status(runID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished[runID]
}

func TestRunNowRecordsOutcome(t *testing.T) {
	log := newMemoryRunLog()
	svc := New(log)

	if _, err := svc.RunNow(context.Background(), JobStatusReport, "ok", func(context.Context) (any, error) {
		return map[string]string{"path": "/tmp/report.pdf"}, nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RunNow(context.Background(), JobStatusReport, "bad", func(context.Context) (any, error) {
		return nil, errors.New("disk full")
	}); err == nil {
		t.Fatal("expected job error to be returned")
	}
	if log.status("ok") != StatusCompleted || log.status("bad") != StatusFailed {
		t.Fatalf("unexpected statuses: %v", log.finished)
	}
}

func TestWorkerRunsEnqueuedAndScheduledJobs(t *testing.T) {
	log := newMemoryRunLog()
	svc := New(log)
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	if !svc.Enqueue(JobStatusReport, "manual", func(context.Context) (any, error) { return nil, nil }) {
		t.Fatal("expected enqueue to succeed")
	}
	svc.Schedule(ctx, 10*time.Millisecond, JobStatusReport, func() map[string]RunFunc {
		return map[string]RunFunc{"tick": func(context.Context) (any, error) { return nil, nil }}
	})

	deadline := time.After(2 * time.Second)
	for seen := 0; seen < 2; {
		select {
		case <-log.done:
			seen++
		case <-deadline:
			t.Fatal("timed out waiting for jobs")
		}
	}
	cancel()
	svc.Wait()

	if log.status("manual") != StatusCompleted || log.status("tick") != StatusCompleted {
		t.Fatalf("unexpected statuses: %v", log.finished)
	}
}
