package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"pdfa-converter/internal/models"
)

// Store wraps pgxpool for Postgres persistence of job records.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres. The DSN is logged with
// credentials redacted.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	log.Printf("connecting to postgres %s", RedactDSN(dsn))
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RedactDSN strips the password from a connection string for safe logging.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var terminalStates = []string{
	string(models.StateCompleted),
	string(models.StateFailed),
	string(models.StateCancelled),
	string(models.StateTimedOut),
}

// CreateJob inserts a new pending job row.
func (s *Store) CreateJob(ctx context.Context, job models.Job) error {
	inputsJSON, err := json.Marshal(job.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	pageOrderJSON, err := json.Marshal(job.PageOrder)
	if err != nil {
		return fmt.Errorf("marshal page order: %w", err)
	}
	languagesJSON, err := json.Marshal(job.Languages)
	if err != nil {
		return fmt.Errorf("marshal languages: %w", err)
	}
	compressionJSON, err := json.Marshal(job.Compression)
	if err != nil {
		return fmt.Errorf("marshal compression: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversion_jobs
			(id, filename, format, inputs, page_order, languages, pdfa_level, ocr, skip_tagged, compression, owner, state, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '', $13, $13)
	`, job.ID, job.Filename, job.Format, inputsJSON, pageOrderJSON, languagesJSON,
		job.PDFALevel, job.OCR, job.SkipTagged, compressionJSON, job.Owner, job.State, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by id; the boolean reports whether it exists.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, filename, format, inputs, page_order, languages, pdfa_level, ocr, skip_tagged, compression,
		       owner, state, progress, error_kind, error_message, result_path,
		       created_at, started_at, finished_at, updated_at
		FROM conversion_jobs WHERE id = $1
	`, id)

	var job models.Job
	var inputsJSON, pageOrderJSON, languagesJSON, compressionJSON []byte
	var owner, errorKind, errorMessage, resultPath pgtype.Text
	var startedAt, finishedAt pgtype.Timestamptz

	err := row.Scan(&job.ID, &job.Filename, &job.Format, &inputsJSON, &pageOrderJSON, &languagesJSON,
		&job.PDFALevel, &job.OCR, &job.SkipTagged, &compressionJSON,
		&owner, &job.State, &job.Progress, &errorKind, &errorMessage, &resultPath,
		&job.CreatedAt, &startedAt, &finishedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal(inputsJSON, &job.Inputs); err != nil {
		return models.Job{}, false, fmt.Errorf("unmarshal inputs: %w", err)
	}
	if err := json.Unmarshal(pageOrderJSON, &job.PageOrder); err != nil {
		return models.Job{}, false, fmt.Errorf("unmarshal page order: %w", err)
	}
	if err := json.Unmarshal(languagesJSON, &job.Languages); err != nil {
		return models.Job{}, false, fmt.Errorf("unmarshal languages: %w", err)
	}
	if err := json.Unmarshal(compressionJSON, &job.Compression); err != nil {
		return models.Job{}, false, fmt.Errorf("unmarshal compression: %w", err)
	}
	job.Owner = textPtr(owner)
	job.ErrorKind = textPtr(errorKind)
	job.ErrorMessage = textPtr(errorMessage)
	job.ResultPath = textPtr(resultPath)
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)
	return job, true, nil
}

// MarkRunning transitions pending -> running. The boolean reports whether
// the transition applied; a concurrent cancel leaves it false.
func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversion_jobs
		SET state = $2, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = $3
	`, id, models.StateRunning, models.StatePending)
	if err != nil {
		return false, fmt.Errorf("mark running: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted transitions running -> completed, recording the result
// location. It never overwrites a terminal state set concurrently.
func (s *Store) MarkCompleted(ctx context.Context, id, resultPath string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversion_jobs
		SET state = $2, result_path = $3, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = $4
	`, id, models.StateCompleted, resultPath, models.StateRunning)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed transitions running -> failed with the error taxonomy kind.
func (s *Store) MarkFailed(ctx context.Context, id, kind, message string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversion_jobs
		SET state = $2, error_kind = $3, error_message = $4, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = $5
	`, id, models.StateFailed, kind, message, models.StateRunning)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled transitions pending or running -> cancelled.
func (s *Store) MarkCancelled(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversion_jobs
		SET state = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = ANY($3)
	`, id, models.StateCancelled, []string{string(models.StatePending), string(models.StateRunning)})
	if err != nil {
		return false, fmt.Errorf("mark cancelled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkTimedOut transitions running -> timed_out.
func (s *Store) MarkTimedOut(ctx context.Context, id, message string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversion_jobs
		SET state = $2, error_message = $3, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = $4
	`, id, models.StateTimedOut, message, models.StateRunning)
	if err != nil {
		return false, fmt.Errorf("mark timed out: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetProgress records best-effort stage progress for a running job.
func (s *Store) SetProgress(ctx context.Context, id, stage string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversion_jobs SET progress = $2, updated_at = NOW()
		WHERE id = $1 AND state = $3
	`, id, stage, models.StateRunning)
	return err
}

// PurgeExpired deletes terminal jobs whose finished_at is older than the
// retention window. Non-terminal jobs are never swept.
func (s *Store) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversion_jobs
		WHERE state = ANY($1) AND finished_at IS NOT NULL AND finished_at < NOW() - make_interval(secs => $2)
	`, terminalStates, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("purge expired jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountRunning returns the number of jobs currently executing.
func (s *Store) CountRunning(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversion_jobs WHERE state = $1
	`, models.StateRunning).Scan(&n); err != nil {
		return 0, fmt.Errorf("count running jobs: %w", err)
	}
	return n, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		return &t.Time
	}
	return nil
}
