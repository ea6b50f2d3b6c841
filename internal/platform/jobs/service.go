// Package jobs runs background work on a single worker goroutine and records
// each run in a RunLog.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"perfhrm/internal/platform/db"
)

const JobStatusReport = "evaluation_status_report"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunFunc func(context.Context) (any, error)

// RunLog persists the lifecycle of job runs. Failures to record are logged
// and never fail the job itself.
type RunLog interface {
	Begin(ctx context.Context, jobType, subject string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

type Service struct {
	log   RunLog
	queue chan job
	wg    sync.WaitGroup
}

type job struct {
	Type    string
	Subject string
	Run     RunFunc
}

func New(log RunLog) *Service {
	if log == nil {
		log = SlogRunLog{}
	}
	return &Service{
		log:   log,
		queue: make(chan job, 128),
	}
}

// Start launches the worker. It stops when ctx is cancelled; Wait blocks
// until it and every schedule have returned.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
}

func (s *Service) Wait() {
	s.wg.Wait()
}

// Enqueue hands a job to the worker. It reports false when the queue is full.
func (s *Service) Enqueue(jobType, subject string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Subject: subject, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "subject", subject)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, subject string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Subject: subject, Run: run})
}

// Schedule enqueues the jobs returned by plan every interval until ctx is done.
func (s *Service) Schedule(ctx context.Context, interval time.Duration, jobType string, plan func() map[string]RunFunc) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for subject, run := range plan() {
					s.Enqueue(jobType, subject, run)
				}
			}
		}
	}()
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "subject", j.Subject, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID, err := s.log.Begin(ctx, j.Type, j.Subject)
	if err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		details = map[string]any{"error": err.Error(), "result": details}
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.log.Finish(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

// PGRunLog writes runs to the job_runs table.
type PGRunLog struct {
	DB db.Querier
}

func (l PGRunLog) Begin(ctx context.Context, jobType, subject string) (string, error) {
	var runID string
	err := l.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, subject, status)
    VALUES ($1,$2,$3)
    RETURNING id::text
  `, jobType, subject, StatusRunning).Scan(&runID)
	return runID, err
}

func (l PGRunLog) Finish(ctx context.Context, runID, status string, details []byte) error {
	_, err := l.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3::bigint
  `, status, details, runID)
	return err
}

// SlogRunLog only logs run completion; the memory driver uses it.
type SlogRunLog struct{}

func (SlogRunLog) Begin(ctx context.Context, jobType, subject string) (string, error) {
	return jobType + ":" + subject, nil
}

func (SlogRunLog) Finish(ctx context.Context, runID, status string, details []byte) error {
	slog.InfoContext(ctx, "job finished", "run", runID, "status", status, "details", string(details))
	return nil
}
