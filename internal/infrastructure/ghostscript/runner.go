package ghostscript

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/ordalo/filepress/internal/domain"
)

// Runner executes external command-line tools with a hard wall-clock timeout.
// The process is killed when the timeout elapses or the parent context is
// canceled; either case surfaces as domain.ErrToolFailure.
type Runner struct{}

// NewRunner creates a new process runner
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes name with args, returning the combined stdout/stderr. Callers
// log the output; control decisions come only from the returned error.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return output, fmt.Errorf("%w: %s timed out after %v", domain.ErrToolFailure, name, timeout)
	}
	if ctx.Err() == context.Canceled {
		return output, fmt.Errorf("%w: %s canceled", domain.ErrToolFailure, name)
	}
	if err != nil {
		return output, fmt.Errorf("%w: %s: %v", domain.ErrToolFailure, name, err)
	}
	return output, nil
}

// Args builds the ghostscript invocation for a single optimization pass:
// pdfwrite device, per-channel raster downsampling to targetDPI, and
// duplicate-image detection, writing the result to outputPath.
func Args(inputPath, outputPath string, targetDPI int) []string {
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dDetectDuplicateImages=true",
		"-dDownsampleColorImages=true",
		fmt.Sprintf("-dColorImageResolution=%d", targetDPI),
		"-dDownsampleGrayImages=true",
		fmt.Sprintf("-dGrayImageResolution=%d", targetDPI),
		"-dDownsampleMonoImages=true",
		fmt.Sprintf("-dMonoImageResolution=%d", targetDPI),
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	}
}

var _ domain.ToolRunner = (*Runner)(nil)
