package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// OCRCmd invokes an ocrmypdf-compatible binary as an external process.
type OCRCmd struct {
	Binary  string
	Timeout time.Duration
}

// NewOCRCmd builds the adapter with a default timeout when none is given.
func NewOCRCmd(binary string, timeout time.Duration) *OCRCmd {
	if timeout == 0 {
		timeout = 20 * time.Minute
	}
	return &OCRCmd{Binary: binary, Timeout: timeout}
}

// Convert runs the engine with a bounded wall-clock timeout; the process is
// killed when the deadline passes.
func (c *OCRCmd) Convert(ctx context.Context, input, output string, opts OCROptions) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Binary, c.args(input, output, opts)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", c.Timeout, ctx.Err())
		}
		return &Error{Engine: "ocr", Output: string(out), Err: err}
	}
	return nil
}

func (c *OCRCmd) args(input, output string, opts OCROptions) []string {
	level := opts.PDFALevel
	if level == 0 {
		level = 2
	}
	args := []string{"--output-type", fmt.Sprintf("pdfa-%d", level)}
	if len(opts.Languages) > 0 {
		args = append(args, "--language", strings.Join(opts.Languages, "+"))
	}
	if opts.ForceOCR {
		args = append(args, "--force-ocr")
	}
	if opts.SkipText {
		args = append(args, "--skip-text")
	}
	cs := opts.Compression
	args = append(args,
		"--image-dpi", strconv.Itoa(cs.DPI),
		"--jpeg-quality", strconv.Itoa(cs.JPEGQuality),
		"--optimize", strconv.Itoa(cs.OptimizeLevel),
	)
	if cs.RemoveVectors {
		args = append(args, "--remove-vectors")
	}
	if cs.JBIG2Lossy {
		args = append(args, "--jbig2-lossy", "--jbig2-page-group-size", strconv.Itoa(cs.JBIG2PageGroupSize))
	}
	return append(args, input, output)
}
