package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/ordalo/filepress/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "filepress-pipeline"

// PipelineImpl implements domain.Pipeline. It classifies the file, routes it
// to the right compressor, enforces the category budget, and guarantees that
// a terminal failure leaves nothing behind at the input path.
type PipelineImpl struct {
	images  domain.ImageCompressor
	pdfs    domain.PDFCompressor
	remover FileRemover
	budgets domain.SizeBudgets

	// pathLocks serializes pipelines targeting the same canonical path, which
	// can happen when callers supply deterministic filenames. Last writer
	// wins, but in a defined order. Entries are reference counted and
	// removed once the last holder releases, so the map stays bounded.
	mu        sync.Mutex
	pathLocks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// FileRemover deletes a stored file; satisfied by repository.LocalStore
type FileRemover interface {
	Remove(path string) error
	FileSize(path string) (int64, error)
}

// NewPipeline creates a new compression pipeline
func NewPipeline(images domain.ImageCompressor, pdfs domain.PDFCompressor, remover FileRemover, budgets domain.SizeBudgets) *PipelineImpl {
	return &PipelineImpl{
		images:    images,
		pdfs:      pdfs,
		remover:   remover,
		budgets:   budgets,
		pathLocks: make(map[string]*pathLock),
	}
}

// Compress runs the full pipeline for one uploaded file and returns the
// final stored size. On any failure the file at path is deleted before the
// error propagates, so failed uploads never leave storage artifacts behind.
func (p *PipelineImpl) Compress(ctx context.Context, path string) (int64, error) {
	unlock := p.lockPath(path)
	defer unlock()

	category := domain.ClassifyPath(path)
	budget := p.budgets.ForCategory(category)

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "pipeline.compress",
		trace.WithAttributes(
			attribute.String("file.name", filepath.Base(path)),
			attribute.String("file.category", string(category)),
			attribute.Int64("file.budget", budget),
		),
	)
	defer span.End()

	if origSize, err := p.remover.FileSize(path); err == nil {
		span.SetAttributes(attribute.Int64("file.original_size", origSize))
	}

	var size int64
	var err error
	switch category {
	case domain.CategoryImage:
		size, err = p.images.Compress(ctx, path, budget)
	case domain.CategoryPDF:
		size, err = p.pdfs.Compress(ctx, path, budget)
	default:
		// No compression policy for this category: pass/fail on size alone
		size, err = p.remover.FileSize(path)
		if err == nil && size > budget {
			err = fmt.Errorf("%w: %d bytes over budget %d", domain.ErrTooLarge, size, budget)
		}
	}

	if err != nil {
		if rmErr := p.remover.Remove(path); rmErr != nil {
			log.Printf("failed to delete rejected upload %s: %v", path, rmErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("file.final_size", size))
	span.SetStatus(codes.Ok, "")
	return size, nil
}

func (p *PipelineImpl) lockPath(path string) func() {
	p.mu.Lock()
	lock, ok := p.pathLocks[path]
	if !ok {
		lock = &pathLock{}
		p.pathLocks[path] = lock
	}
	lock.refs++
	p.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		p.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(p.pathLocks, path)
		}
		p.mu.Unlock()
	}
}

var _ domain.Pipeline = (*PipelineImpl)(nil)
