// Package engine adapts the external conversion binaries (OCR/PDF-A
// converter, office-to-PDF converter, image-to-PDF assembler) behind
// interfaces the pipeline can fake in tests.
package engine

import (
	"context"
	"fmt"
	"strings"

	"pdfa-converter/internal/models"
)

// OCROptions carries the resolved flags handed to the OCR/PDF-A engine.
type OCROptions struct {
	Languages   []string
	PDFALevel   int
	ForceOCR    bool
	SkipText    bool
	Compression models.CompressionSettings
}

// OCRConverter produces a PDF/A document, optionally adding an OCR text layer.
type OCRConverter interface {
	Convert(ctx context.Context, input, output string, opts OCROptions) error
}

// OfficeConverter renders an office document to PDF in outDir and returns
// the produced path.
type OfficeConverter interface {
	Convert(ctx context.Context, input, outDir string) (string, error)
}

// ImageAssembler combines ordered images into a single multi-page PDF.
type ImageAssembler interface {
	Assemble(ctx context.Context, images []string, output string) error
}

// Error wraps an engine failure, preserving the engine's raw diagnostic
// output for the job's terminal detail.
type Error struct {
	Engine string
	Output string
	Err    error
}

func (e *Error) Error() string {
	if out := strings.TrimSpace(e.Output); out != "" {
		return fmt.Sprintf("%s engine: %v: %s", e.Engine, e.Err, out)
	}
	return fmt.Sprintf("%s engine: %v", e.Engine, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// OfficeError marks office-to-PDF failures (non-zero exit, timeout, or
// missing declared output) so the job layer can record them distinctly.
type OfficeError struct {
	Output string
	Err    error
}

func (e *OfficeError) Error() string {
	if out := strings.TrimSpace(e.Output); out != "" {
		return fmt.Sprintf("office conversion: %v: %s", e.Err, out)
	}
	return fmt.Sprintf("office conversion: %v", e.Err)
}

func (e *OfficeError) Unwrap() error { return e.Err }
