// Package jobs owns the conversion job state machine: submission,
// start/finish transitions, cooperative cancellation, timeout, and
// retention cleanup.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pdfa-converter/internal/compression"
	"pdfa-converter/internal/engine"
	"pdfa-converter/internal/format"
	"pdfa-converter/internal/models"
)

var (
	// ErrJobNotFound marks lookups of unknown or retention-purged job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition marks an attempted transition out of a terminal
	// state. This is a programming-error class fault, not user input.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrCancelled is observed by pipeline checkpoints when a job was
	// cancelled cooperatively.
	ErrCancelled = errors.New("job cancelled")
	// ErrTimedOut marks a job that exceeded its configured max runtime.
	ErrTimedOut = errors.New("job timed out")
)

// JobStore is the persistence contract the manager drives. The Mark*
// methods are compare-and-transition: the boolean reports whether the
// transition applied, so a terminal state set concurrently is never
// overwritten.
type JobStore interface {
	CreateJob(ctx context.Context, job models.Job) error
	GetJob(ctx context.Context, id string) (models.Job, bool, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id, resultPath string) (bool, error)
	MarkFailed(ctx context.Context, id, kind, message string) (bool, error)
	MarkCancelled(ctx context.Context, id string) (bool, error)
	MarkTimedOut(ctx context.Context, id, message string) (bool, error)
	SetProgress(ctx context.Context, id, stage string) error
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Enqueuer is the dispatch contract (Redis in production).
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
	Remove(ctx context.Context, jobID string) error
}

// Options tune the manager.
type Options struct {
	RetentionWindow time.Duration
	SweepInterval   time.Duration
}

// Manager enforces the job state machine over a store and a queue.
type Manager struct {
	store JobStore
	queue Enqueuer
	opts  Options
}

func NewManager(store JobStore, queue Enqueuer, opts Options) *Manager {
	if opts.RetentionWindow == 0 {
		opts.RetentionWindow = 72 * time.Hour
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 10 * time.Minute
	}
	return &Manager{store: store, queue: queue, opts: opts}
}

// SubmitParams collects inputs for a new conversion job.
type SubmitParams struct {
	Inputs      []string
	PageOrder   []int
	Languages   []string
	PDFALevel   int
	OCR         bool
	SkipTagged  bool
	Compression compression.Params
	Owner       string
}

// Submit validates the request, persists a pending job, and enqueues it.
// The pipeline runs asynchronously; the returned job carries the id clients
// poll. Format and parameter validation fail here, before any engine work.
func (m *Manager) Submit(ctx context.Context, p SubmitParams) (models.Job, error) {
	if len(p.Inputs) == 0 {
		return models.Job{}, &models.ValidationError{Field: "inputs", Reason: "at least one source artifact is required"}
	}
	filename := filepath.Base(p.Inputs[0])
	_, route, err := format.Classify(filename)
	if err != nil {
		return models.Job{}, err
	}
	level := p.PDFALevel
	if level == 0 {
		level = 2
	}
	if level < 1 || level > 3 {
		return models.Job{}, &models.ValidationError{Field: "pdfa_level", Reason: fmt.Sprintf("must be 1, 2 or 3, got %d", p.PDFALevel)}
	}
	settings, err := compression.Resolve(p.Compression)
	if err != nil {
		return models.Job{}, err
	}
	if route != format.RouteImage && len(p.PageOrder) > 0 {
		return models.Job{}, &models.ValidationError{Field: "page_order", Reason: "only image conversions take a page order"}
	}

	now := time.Now().UTC()
	job := models.Job{
		ID:          uuid.New().String(),
		Filename:    filename,
		Format:      string(route),
		Inputs:      p.Inputs,
		PageOrder:   p.PageOrder,
		Languages:   p.Languages,
		PDFALevel:   level,
		OCR:         p.OCR,
		SkipTagged:  p.SkipTagged,
		Compression: settings,
		Owner:       emptyToNil(p.Owner),
		State:       models.StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return models.Job{}, fmt.Errorf("persist job: %w", err)
	}
	if err := m.queue.Enqueue(ctx, job.ID); err != nil {
		// The record exists but will never be dispatched; fix it terminal.
		if _, cerr := m.store.MarkCancelled(ctx, job.ID); cerr != nil {
			log.Printf("job %s: cancel after enqueue failure: %v", job.ID, cerr)
		}
		return models.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Lookup fetches a job by id.
func (m *Manager) Lookup(ctx context.Context, id string) (models.Job, error) {
	job, found, err := m.store.GetJob(ctx, id)
	if err != nil {
		return models.Job{}, err
	}
	if !found {
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// Start transitions a dispatched job to running. ErrCancelled is returned
// when the job was cancelled while still queued, so the worker skips it.
func (m *Manager) Start(ctx context.Context, id string) (models.Job, error) {
	applied, err := m.store.MarkRunning(ctx, id)
	if err != nil {
		return models.Job{}, err
	}
	if !applied {
		job, found, err := m.store.GetJob(ctx, id)
		if err != nil {
			return models.Job{}, err
		}
		if !found {
			return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		if job.State == models.StateCancelled {
			return models.Job{}, ErrCancelled
		}
		return models.Job{}, fmt.Errorf("%w: start from %s", ErrInvalidTransition, job.State)
	}
	return m.Lookup(ctx, id)
}

// Complete fixes a running job at completed. ErrInvalidTransition means a
// concurrent cancel or timeout won the race; the caller must discard the
// produced artifact.
func (m *Manager) Complete(ctx context.Context, id, resultPath string) error {
	applied, err := m.store.MarkCompleted(ctx, id, resultPath)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: complete", ErrInvalidTransition)
	}
	return nil
}

// Fail fixes a running job at failed, recording the taxonomy kind and a
// human-readable reason. Failed jobs are never retried automatically.
func (m *Manager) Fail(ctx context.Context, id string, cause error) error {
	applied, err := m.store.MarkFailed(ctx, id, KindOf(cause), cause.Error())
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: fail", ErrInvalidTransition)
	}
	return nil
}

// Cancel requests cooperative cancellation. Pending jobs are removed from
// the queue; running jobs observe the cancelled state at their next stage
// checkpoint.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if _, err := m.Lookup(ctx, id); err != nil {
		return err
	}
	if err := m.queue.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	applied, err := m.store.MarkCancelled(ctx, id)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: cancel", ErrInvalidTransition)
	}
	return nil
}

// MarkTimedOut fixes a running job at timed_out after its max runtime.
func (m *Manager) MarkTimedOut(ctx context.Context, id string, elapsed time.Duration) error {
	applied, err := m.store.MarkTimedOut(ctx, id, fmt.Sprintf("conversion exceeded max runtime (%s)", elapsed))
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: timeout", ErrInvalidTransition)
	}
	return nil
}

// Cancelled reports whether the job has been cancelled; pipeline
// checkpoints poll it at stage boundaries.
func (m *Manager) Cancelled(ctx context.Context, id string) (bool, error) {
	job, found, err := m.store.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		// A job cannot be swept while non-terminal; a vanished record means
		// it was already cancelled and purged.
		return true, nil
	}
	return job.State == models.StateCancelled, nil
}

// SetProgress records best-effort stage progress.
func (m *Manager) SetProgress(ctx context.Context, id, stage string) {
	if err := m.store.SetProgress(ctx, id, stage); err != nil {
		log.Printf("job %s: set progress: %v", id, err)
	}
}

// RunRetentionSweep periodically deletes terminal jobs older than the
// retention window, measured from their terminal timestamp.
func (m *Manager) RunRetentionSweep(ctx context.Context) {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.store.PurgeExpired(ctx, m.opts.RetentionWindow)
			if err != nil {
				log.Printf("retention sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("retention sweep removed %d expired jobs", n)
			}
		}
	}
}

// KindOf maps an error to its persisted taxonomy kind.
func KindOf(err error) string {
	var unsupported *format.UnsupportedError
	if errors.As(err, &unsupported) {
		return models.KindUnsupportedFormat
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return models.KindValidation
	}
	var oerr *engine.OfficeError
	if errors.As(err, &oerr) {
		return models.KindOfficeConversion
	}
	var eerr *engine.Error
	if errors.As(err, &eerr) {
		return models.KindEngine
	}
	return models.KindInternal
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
