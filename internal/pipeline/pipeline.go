// Package pipeline sequences a single conversion through its stages:
// route-specific pre-conversion (office -> PDF, images -> PDF) followed by
// the common PDF -> PDF/A stage.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pdfa-converter/internal/artifact"
	"pdfa-converter/internal/compression"
	"pdfa-converter/internal/engine"
	"pdfa-converter/internal/format"
	"pdfa-converter/internal/models"
)

// Stage names the per-invocation progress points. They are not persisted as
// job states; the worker reports them as best-effort progress.
type Stage string

const (
	StageReceived      Stage = "received"
	StageRouted        Stage = "routed"
	StagePreConverted  Stage = "pre_converted"
	StagePDFAConverted Stage = "pdfa_converted"
	StageDone          Stage = "done"
)

// Checkpoint is polled before every external engine invocation so a
// cancelled or timed-out job aborts without starting further expensive work.
type Checkpoint func(ctx context.Context) error

// TagDetector reports whether a PDF already carries structure tags.
type TagDetector interface {
	IsTagged(path string) (bool, error)
}

// Request is one pipeline invocation. It is owned exclusively by the
// invocation and never shared across jobs.
type Request struct {
	Inputs      []string
	PageOrder   []int
	PDFALevel   int
	OCR         bool
	Languages   []string
	SkipTagged  bool
	Compression models.CompressionSettings
	WorkDir     string
	OutputKey   string
}

// Pipeline routes requests through the external engines.
type Pipeline struct {
	Office    engine.OfficeConverter
	OCR       engine.OCRConverter
	Assembler engine.ImageAssembler
	Tags      TagDetector
	Publisher artifact.Publisher
	OnStage   func(Stage)
}

// Run executes the stage sequence and returns the published result
// location. Engine failures are returned with their diagnostics preserved;
// the pipeline never retries on its own.
func (p *Pipeline) Run(ctx context.Context, req Request, check Checkpoint) (string, error) {
	p.stage(StageReceived)

	if len(req.Inputs) == 0 {
		return "", &models.ValidationError{Field: "inputs", Reason: "at least one source artifact is required"}
	}
	_, route, err := format.Classify(req.Inputs[0])
	if err != nil {
		return "", err
	}
	p.stage(StageRouted)

	// Settings are validated before any engine starts; an invalid
	// combination must never cost an office render or OCR pass first.
	if err := compression.Validate(req.Compression); err != nil {
		return "", err
	}

	var intermediate string
	switch route {
	case format.RoutePDF:
		if len(req.Inputs) != 1 {
			return "", &models.ValidationError{Field: "inputs", Reason: "pdf conversion takes exactly one input"}
		}
		intermediate = req.Inputs[0]

	case format.RouteOffice:
		if len(req.Inputs) != 1 {
			return "", &models.ValidationError{Field: "inputs", Reason: "office conversion takes exactly one input"}
		}
		if err := p.checkpoint(ctx, check); err != nil {
			return "", err
		}
		produced, err := p.Office.Convert(ctx, req.Inputs[0], req.WorkDir)
		if err != nil {
			return "", err
		}
		intermediate = filepath.Join(req.WorkDir, "intermediate.pdf")
		if err := os.Rename(produced, intermediate); err != nil {
			return "", fmt.Errorf("relocate intermediate pdf: %w", err)
		}
		p.stage(StagePreConverted)

	case format.RouteImage:
		ordered, err := orderImages(req.Inputs, req.PageOrder)
		if err != nil {
			return "", err
		}
		if err := p.checkpoint(ctx, check); err != nil {
			return "", err
		}
		intermediate = filepath.Join(req.WorkDir, "assembled.pdf")
		if err := p.Assembler.Assemble(ctx, ordered, intermediate); err != nil {
			return "", err
		}
		p.stage(StagePreConverted)
	}

	forceOCR := req.OCR
	skipText := false
	if req.OCR && req.SkipTagged && p.Tags != nil {
		tagged, err := p.Tags.IsTagged(intermediate)
		if err != nil {
			return "", err
		}
		if tagged {
			// Already-tagged documents keep their text layer; forcing OCR
			// would re-rasterize extractable text.
			forceOCR = false
			skipText = true
		}
	}

	if err := p.checkpoint(ctx, check); err != nil {
		return "", err
	}
	converted := filepath.Join(req.WorkDir, "pdfa.pdf")
	err = p.OCR.Convert(ctx, intermediate, converted, engine.OCROptions{
		Languages:   req.Languages,
		PDFALevel:   req.PDFALevel,
		ForceOCR:    forceOCR,
		SkipText:    skipText,
		Compression: req.Compression,
	})
	if err != nil {
		return "", err
	}
	p.stage(StagePDFAConverted)

	location, err := p.Publisher.Publish(ctx, req.OutputKey, converted)
	if err != nil {
		return "", fmt.Errorf("publish result: %w", err)
	}
	p.stage(StageDone)
	return location, nil
}

// orderImages validates the image list and applies the optional page order
// permutation. Failures identify the offending index.
func orderImages(inputs []string, order []int) ([]string, error) {
	for i, img := range inputs {
		ext := filepath.Ext(img)
		if !format.IsImage(ext) {
			return nil, &models.ValidationError{
				Field:  fmt.Sprintf("inputs[%d]", i),
				Reason: fmt.Sprintf("%q is not a supported image", filepath.Base(img)),
			}
		}
		if _, err := os.Stat(img); err != nil {
			return nil, &models.ValidationError{
				Field:  fmt.Sprintf("inputs[%d]", i),
				Reason: fmt.Sprintf("%q does not exist", img),
			}
		}
	}
	if order == nil {
		return inputs, nil
	}
	if len(order) != len(inputs) {
		return nil, &models.ValidationError{
			Field:  "page_order",
			Reason: fmt.Sprintf("length %d does not match %d images", len(order), len(inputs)),
		}
	}
	seen := make([]bool, len(inputs))
	ordered := make([]string, len(inputs))
	for i, idx := range order {
		if idx < 0 || idx >= len(inputs) || seen[idx] {
			return nil, &models.ValidationError{
				Field:  "page_order",
				Reason: fmt.Sprintf("entry %d is not a permutation of 0..%d", i, len(inputs)-1),
			}
		}
		seen[idx] = true
		ordered[i] = inputs[idx]
	}
	return ordered, nil
}

func (p *Pipeline) checkpoint(ctx context.Context, check Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if check != nil {
		return check(ctx)
	}
	return nil
}

func (p *Pipeline) stage(s Stage) {
	if p.OnStage != nil {
		p.OnStage(s)
	}
}
