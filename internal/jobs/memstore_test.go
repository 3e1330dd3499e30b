package jobs

import (
	"context"
	"sync"
	"time"

	"pdfa-converter/internal/models"
)

// memStore is an in-memory JobStore enforcing the same compare-and-
// transition discipline as the Postgres implementation.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]models.Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]models.Job)}
}

func (s *memStore) CreateJob(_ context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memStore) GetJob(_ context.Context, id string) (models.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *memStore) transition(id string, to models.JobState, mutate func(*models.Job)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !models.CanTransition(job.State, to) {
		return false, nil
	}
	now := time.Now().UTC()
	job.State = to
	job.UpdatedAt = now
	if to == models.StateRunning {
		job.StartedAt = &now
	}
	if to.Terminal() {
		job.FinishedAt = &now
	}
	if mutate != nil {
		mutate(&job)
	}
	s.jobs[id] = job
	return true, nil
}

func (s *memStore) MarkRunning(_ context.Context, id string) (bool, error) {
	return s.transition(id, models.StateRunning, nil)
}

func (s *memStore) MarkCompleted(_ context.Context, id, resultPath string) (bool, error) {
	return s.transition(id, models.StateCompleted, func(j *models.Job) {
		j.ResultPath = &resultPath
	})
}

func (s *memStore) MarkFailed(_ context.Context, id, kind, message string) (bool, error) {
	return s.transition(id, models.StateFailed, func(j *models.Job) {
		j.ErrorKind = &kind
		j.ErrorMessage = &message
	})
}

func (s *memStore) MarkCancelled(_ context.Context, id string) (bool, error) {
	return s.transition(id, models.StateCancelled, nil)
}

func (s *memStore) MarkTimedOut(_ context.Context, id, message string) (bool, error) {
	return s.transition(id, models.StateTimedOut, func(j *models.Job) {
		j.ErrorMessage = &message
	})
}

func (s *memStore) SetProgress(_ context.Context, id, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && job.State == models.StateRunning {
		job.Progress = stage
		s.jobs[id] = job
	}
	return nil
}

func (s *memStore) PurgeExpired(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, job := range s.jobs {
		if job.State.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// memQueue is an in-memory Enqueuer recording dispatch operations.
type memQueue struct {
	mu      sync.Mutex
	ready   []string
	removed []string
	err     error
}

func (q *memQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ready = append(q.ready, jobID)
	return nil
}

func (q *memQueue) Remove(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, jobID)
	for i, id := range q.ready {
		if id == jobID {
			q.ready = append(q.ready[:i], q.ready[i+1:]...)
			break
		}
	}
	return nil
}
