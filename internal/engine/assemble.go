package engine

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// AssemblerCmd invokes an img2pdf-compatible binary to combine ordered
// images into one multi-page PDF. Page order follows argument order.
type AssemblerCmd struct {
	Binary  string
	Timeout time.Duration
}

// NewAssemblerCmd builds the adapter with a default timeout when none is given.
func NewAssemblerCmd(binary string, timeout time.Duration) *AssemblerCmd {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &AssemblerCmd{Binary: binary, Timeout: timeout}
}

func (c *AssemblerCmd) Assemble(ctx context.Context, images []string, output string) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := append([]string{"-o", output}, images...)
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", c.Timeout, ctx.Err())
		}
		return &Error{Engine: "assemble", Output: string(out), Err: err}
	}
	return nil
}
