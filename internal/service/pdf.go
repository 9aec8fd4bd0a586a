package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ordalo/filepress/internal/domain"
	"github.com/ordalo/filepress/internal/infrastructure/ghostscript"
)

// PDFCompressorImpl implements domain.PDFCompressor: exactly one external
// optimization pass with a hard timeout. A failed pass falls back to the
// original file; a single pass is deliberate, trading compression ratio for
// predictable latency. The PDF budget is enforced on whichever file is kept.
type PDFCompressorImpl struct {
	runner    domain.ToolRunner
	stager    domain.Stager
	binary    string
	timeout   time.Duration
	targetDPI int
}

// NewPDFCompressor creates a new PDF compressor
func NewPDFCompressor(runner domain.ToolRunner, stager domain.Stager, binary string, timeout time.Duration, targetDPI int) *PDFCompressorImpl {
	return &PDFCompressorImpl{
		runner:    runner,
		stager:    stager,
		binary:    binary,
		timeout:   timeout,
		targetDPI: targetDPI,
	}
}

// Compress optimizes the PDF at path in place and returns the stored size.
// The optimized output only replaces the original when it is strictly
// smaller; a stored PDF never grows. If the kept file still exceeds budget
// the error wraps domain.ErrTooLarge (and mentions the tool failure when the
// pass itself failed).
func (c *PDFCompressorImpl) Compress(ctx context.Context, path string, budget int64) (int64, error) {
	origSize, err := fileSize(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat pdf: %w", err)
	}

	tempPath := c.stager.TempPath(path, ".pdf")
	args := ghostscript.Args(path, tempPath, c.targetDPI)

	var toolErr error
	output, err := c.runner.Run(ctx, c.timeout, c.binary, args...)
	if err != nil {
		// Tool failure is recoverable: drop any partial output, keep the original
		if len(output) > 0 {
			log.Printf("pdf tool output for %s: %s", path, output)
		}
		log.Printf("pdf optimization failed for %s, keeping original: %v", path, err)
		c.stager.Discard(tempPath)
		toolErr = err
	} else {
		optSize, statErr := fileSize(tempPath)
		if statErr == nil && optSize > 0 && optSize < origSize {
			if err := c.stager.Promote(tempPath, path); err != nil {
				return 0, err
			}
		} else {
			// Optimization did not shrink the file; never store a larger result
			c.stager.Discard(tempPath)
		}
	}

	finalSize, err := fileSize(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat pdf after optimization: %w", err)
	}
	if finalSize > budget {
		if toolErr != nil {
			return 0, fmt.Errorf("%w: %d bytes over budget %d after tool failure (%v)", domain.ErrTooLarge, finalSize, budget, toolErr)
		}
		return 0, fmt.Errorf("%w: %d bytes over budget %d after optimization", domain.ErrTooLarge, finalSize, budget)
	}
	return finalSize, nil
}

var _ domain.PDFCompressor = (*PDFCompressorImpl)(nil)
