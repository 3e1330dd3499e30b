package models

import (
	"fmt"
	"time"
)

// JobState enumerates lifecycle states persisted in Postgres.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
	StateTimedOut  JobState = "timed_out"
)

// Terminal reports whether a state admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

var transitions = map[JobState][]JobState{
	StatePending: {StateRunning, StateCancelled},
	StateRunning: {StateCompleted, StateFailed, StateCancelled, StateTimedOut},
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to JobState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CompressionSettings are the resolved image/compression parameters handed to
// the OCR/PDF-A engine. Produce them through compression.Resolve; treat them
// as immutable afterwards.
type CompressionSettings struct {
	DPI                int  `json:"dpi"`
	JPEGQuality        int  `json:"jpeg_quality"`
	RemoveVectors      bool `json:"remove_vectors"`
	OptimizeLevel      int  `json:"optimize_level"`
	JBIG2Lossy         bool `json:"jbig2_lossy"`
	JBIG2PageGroupSize int  `json:"jbig2_page_group_size"`
}

// Job represents one tracked conversion request persisted in Postgres.
type Job struct {
	ID           string              `json:"id"`
	Filename     string              `json:"filename"`
	Format       string              `json:"format"`
	Inputs       []string            `json:"inputs"`
	PageOrder    []int               `json:"page_order,omitempty"`
	Languages    []string            `json:"languages,omitempty"`
	PDFALevel    int                 `json:"pdfa_level"`
	OCR          bool                `json:"ocr"`
	SkipTagged   bool                `json:"skip_tagged"`
	Compression  CompressionSettings `json:"compression"`
	Owner        *string             `json:"owner,omitempty"`
	State        JobState            `json:"state"`
	Progress     string              `json:"progress,omitempty"`
	ErrorKind    *string             `json:"error_kind,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	ResultPath   *string             `json:"result_path,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Error kinds recorded on failed jobs.
const (
	KindUnsupportedFormat = "unsupported_format"
	KindValidation        = "validation"
	KindOfficeConversion  = "office_conversion"
	KindEngine            = "engine"
	KindInternal          = "internal"
)

// ValidationError reports a rejected request parameter before any external
// engine is invoked.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
