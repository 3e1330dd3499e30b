package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// OfficeCmd invokes a soffice-compatible headless converter.
type OfficeCmd struct {
	Binary  string
	Timeout time.Duration
}

// NewOfficeCmd builds the adapter with a default timeout when none is given.
func NewOfficeCmd(binary string, timeout time.Duration) *OfficeCmd {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &OfficeCmd{Binary: binary, Timeout: timeout}
}

// Convert renders input to PDF inside outDir. The declared output path is
// verified; a missing file after a clean exit is still an OfficeError.
func (c *OfficeCmd) Convert(ctx context.Context, input, outDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Binary, "--headless", "--convert-to", "pdf", "--outdir", outDir, input)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", c.Timeout, ctx.Err())
		}
		return "", &OfficeError{Output: string(out), Err: err}
	}

	base := filepath.Base(input)
	produced := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return "", &OfficeError{Output: string(out), Err: fmt.Errorf("declared output missing: %w", err)}
	}
	return produced, nil
}
