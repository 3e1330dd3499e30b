// Package worker drives the conversion worker pool: it leases jobs from the
// queue, runs each through the pipeline, and fixes the terminal state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"pdfa-converter/internal/artifact"
	"pdfa-converter/internal/config"
	"pdfa-converter/internal/jobs"
	"pdfa-converter/internal/models"
	"pdfa-converter/internal/pipeline"
	"pdfa-converter/internal/queue"
	"pdfa-converter/internal/telemetry"
)

// Processor runs a bounded pool of workers. Each job's stages execute
// sequentially inside one worker; jobs run in parallel across workers, which
// also bounds the number of concurrent external engine processes.
type Processor struct {
	cfg      config.Config
	queue    *queue.RedisQueue
	manager  *jobs.Manager
	pipeline *pipeline.Pipeline
}

func NewProcessor(cfg config.Config, q *queue.RedisQueue, m *jobs.Manager, p *pipeline.Pipeline) *Processor {
	return &Processor{cfg: cfg, queue: q, manager: m, pipeline: p}
}

// Run starts the worker pool and the queue supervisor until context
// cancellation.
func (p *Processor) Run(ctx context.Context) error {
	workers := p.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.supervise(ctx)
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workLoop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// supervise reclaims expired leases and keeps the depth gauge current.
func (p *Processor) supervise(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reclaimed, err := p.queue.RequeueExpired(ctx, time.Now(), 100); err == nil && len(reclaimed) > 0 {
				log.Printf("reclaimed %d expired leases", len(reclaimed))
			}
			if depth, err := p.queue.ReadyDepth(ctx); err == nil {
				telemetry.QueueDepthGauge.Set(float64(depth))
			}
		}
	}
}

func (p *Processor) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := p.queue.DequeueWithLease(ctx)
		if err != nil || jobID == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.WorkerPollInterval):
			}
			continue
		}
		p.process(ctx, jobID)
	}
}

// process executes one leased job end to end and always acks the lease
// after the terminal state is fixed.
func (p *Processor) process(ctx context.Context, jobID string) {
	defer func() {
		if err := p.queue.Ack(ctx, jobID); err != nil {
			log.Printf("job %s: ack: %v", jobID, err)
		}
	}()

	job, err := p.manager.Start(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrCancelled) || errors.Is(err, jobs.ErrJobNotFound) {
			return
		}
		log.Printf("job %s: start: %v", jobID, err)
		return
	}

	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	workDir, err := os.MkdirTemp(p.cfg.WorkDir, "convert-"+job.ID+"-")
	if err != nil {
		if ferr := p.manager.Fail(ctx, job.ID, fmt.Errorf("create working dir: %w", err)); ferr != nil {
			log.Printf("job %s: fail: %v", job.ID, ferr)
		}
		telemetry.FailedCounter.Inc()
		return
	}
	// The working area belongs to this job alone and is removed on every
	// terminal transition.
	defer os.RemoveAll(workDir)

	maxRuntime := p.cfg.JobMaxRuntime
	if maxRuntime == 0 {
		maxRuntime = 30 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, maxRuntime)
	defer cancel()

	started := time.Now()
	location, err := p.run(ctx, runCtx, job, workDir)

	switch {
	case err == nil:
		if cerr := p.manager.Complete(ctx, job.ID, location); cerr != nil {
			// A concurrent cancel or timeout fixed the terminal state first;
			// the produced artifact must not become visible.
			if derr := artifact.Discard(location); derr != nil {
				log.Printf("job %s: discard result: %v", job.ID, derr)
			}
			telemetry.CancelledCounter.Inc()
			return
		}
		telemetry.CompletedCounter.Inc()

	case errors.Is(err, jobs.ErrCancelled):
		// Terminal state already fixed by Cancel; nothing to record.
		telemetry.CancelledCounter.Inc()

	case errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil && ctx.Err() == nil:
		if terr := p.manager.MarkTimedOut(ctx, job.ID, time.Since(started)); terr != nil {
			log.Printf("job %s: timeout: %v", job.ID, terr)
		}
		telemetry.TimedOutCounter.Inc()

	case ctx.Err() != nil:
		// Shutdown; the lease expires and another worker picks the job up.
		return

	default:
		if ferr := p.manager.Fail(ctx, job.ID, err); ferr != nil {
			log.Printf("job %s: fail: %v", job.ID, ferr)
		}
		telemetry.FailedCounter.Inc()
	}
}

// run executes the pipeline with cooperative cancellation checkpoints and
// lease keep-alive around engine calls.
func (p *Processor) run(baseCtx, runCtx context.Context, job models.Job, workDir string) (string, error) {
	check := func(c context.Context) error {
		if err := c.Err(); err != nil {
			return err
		}
		// Long engine calls follow; keep the lease ahead of them.
		if err := p.queue.ExtendLease(baseCtx, job.ID, p.cfg.VisibilityTimeout); err != nil {
			log.Printf("job %s: extend lease: %v", job.ID, err)
		}
		cancelled, err := p.manager.Cancelled(baseCtx, job.ID)
		if err != nil {
			return err
		}
		if cancelled {
			return jobs.ErrCancelled
		}
		return nil
	}

	pl := *p.pipeline
	pl.OnStage = func(s pipeline.Stage) {
		p.manager.SetProgress(baseCtx, job.ID, string(s))
	}

	return pl.Run(runCtx, pipeline.Request{
		Inputs:      job.Inputs,
		PageOrder:   job.PageOrder,
		PDFALevel:   job.PDFALevel,
		OCR:         job.OCR,
		Languages:   job.Languages,
		SkipTagged:  job.SkipTagged,
		Compression: job.Compression,
		WorkDir:     workDir,
		OutputKey:   job.ID + ".pdf",
	}, check)
}
