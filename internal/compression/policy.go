// Package compression validates and defaults the image/compression
// parameters handed to the OCR/PDF-A engine.
package compression

import (
	"fmt"

	"pdfa-converter/internal/models"
)

// Defaults applied when a caller omits a field.
const (
	DefaultDPI                = 300
	DefaultJPEGQuality        = 75
	DefaultOptimizeLevel      = 1
	DefaultJBIG2PageGroupSize = 10
)

// Params carries caller-supplied compression parameters. Nil fields take the
// documented defaults during Resolve.
type Params struct {
	DPI                *int  `json:"dpi,omitempty"`
	JPEGQuality        *int  `json:"jpeg_quality,omitempty"`
	RemoveVectors      *bool `json:"remove_vectors,omitempty"`
	OptimizeLevel      *int  `json:"optimize_level,omitempty"`
	JBIG2Lossy         *bool `json:"jbig2_lossy,omitempty"`
	JBIG2PageGroupSize *int  `json:"jbig2_page_group_size,omitempty"`
}

// Resolve fills omitted fields with defaults and validates the result. It
// runs once per request, before any external engine is invoked, so expensive
// conversions never start with settings guaranteed to fail downstream.
func Resolve(p Params) (models.CompressionSettings, error) {
	s := models.CompressionSettings{
		DPI:                intOr(p.DPI, DefaultDPI),
		JPEGQuality:        intOr(p.JPEGQuality, DefaultJPEGQuality),
		RemoveVectors:      boolOr(p.RemoveVectors, false),
		OptimizeLevel:      intOr(p.OptimizeLevel, DefaultOptimizeLevel),
		JBIG2Lossy:         boolOr(p.JBIG2Lossy, false),
		JBIG2PageGroupSize: intOr(p.JBIG2PageGroupSize, DefaultJBIG2PageGroupSize),
	}
	if err := Validate(s); err != nil {
		return models.CompressionSettings{}, err
	}
	return s, nil
}

// Validate enforces the engine's parameter bounds.
func Validate(s models.CompressionSettings) error {
	if s.DPI <= 0 {
		return &models.ValidationError{Field: "dpi", Reason: fmt.Sprintf("must be positive, got %d", s.DPI)}
	}
	if s.JPEGQuality < 0 || s.JPEGQuality > 100 {
		return &models.ValidationError{Field: "jpeg_quality", Reason: fmt.Sprintf("must be in [0,100], got %d", s.JPEGQuality)}
	}
	if s.OptimizeLevel < 0 || s.OptimizeLevel > 3 {
		return &models.ValidationError{Field: "optimize_level", Reason: fmt.Sprintf("must be in [0,3], got %d", s.OptimizeLevel)}
	}
	if s.JBIG2Lossy && s.JBIG2PageGroupSize <= 0 {
		return &models.ValidationError{Field: "jbig2_page_group_size", Reason: fmt.Sprintf("must be positive when jbig2_lossy is set, got %d", s.JBIG2PageGroupSize)}
	}
	return nil
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}
