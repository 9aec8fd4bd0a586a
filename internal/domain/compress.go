package domain

import (
	"context"
	"io"
	"time"
)

// LadderRung is one configured image compression pass: resize to at most
// MaxWidth pixels wide (never upscaling), then re-encode at Quality.
type LadderRung struct {
	MaxWidth int
	Quality  int
}

// SizeBudgets holds the per-category byte ceilings
type SizeBudgets struct {
	Image int64
	PDF   int64
	Other int64
}

// ForCategory returns the budget that applies to a category
func (b SizeBudgets) ForCategory(cat Category) int64 {
	switch cat {
	case CategoryImage:
		return b.Image
	case CategoryPDF:
		return b.PDF
	default:
		return b.Other
	}
}

// ImagePolicy selects what happens when no ladder rung meets the image budget
type ImagePolicy string

const (
	// ImagePolicyBestEffort stores the smallest candidate even above budget
	ImagePolicyBestEffort ImagePolicy = "best-effort"
	// ImagePolicyStrict rejects the upload when no rung meets budget
	ImagePolicyStrict ImagePolicy = "strict"
)

// ImageCompressor reduces an image file in place toward the given byte budget
type ImageCompressor interface {
	Compress(ctx context.Context, path string, budget int64) (int64, error)
}

// PDFCompressor runs a single bounded optimization pass over a PDF in place
type PDFCompressor interface {
	Compress(ctx context.Context, path string, budget int64) (int64, error)
}

// Pipeline orchestrates classification, compression, and budget enforcement
// for one uploaded file. On failure the file at path is deleted before the
// error is returned.
type Pipeline interface {
	Compress(ctx context.Context, path string) (int64, error)
}

// ToolRunner executes an external command-line tool, killing it when the
// timeout elapses. The returned bytes are the tool's combined stdout/stderr,
// which callers log but never parse for control decisions.
type ToolRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error)
}

// Stager stages transformations next to a canonical file and promotes them
// atomically. Stage either produces a complete temporary sibling file or
// cleans up and fails without touching path. Discard removes an abandoned
// temporary file immediately.
type Stager interface {
	Stage(path string, ext string, write func(w io.Writer) error) (string, error)
	TempPath(path string, ext string) string
	Promote(tempPath, canonicalPath string) error
	Discard(tempPath string)
}

// FileRepository mirrors accepted files to secondary storage
type FileRepository interface {
	// Upload saves a file and returns its access URL
	Upload(ctx context.Context, file []byte, filename string, contentType string) (string, error)
}
