package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ordalo/filepress/internal/domain"
	"github.com/ordalo/filepress/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner stands in for the ghostscript process in tests
type fakeRunner struct {
	// outputBytes, when set, is written to the tool's output path
	outputBytes []byte
	// err simulates a non-zero exit or timeout
	err error

	calls int
}

func (f *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return []byte("fake tool diagnostics"), f.err
	}
	outPath := outputPathFromArgs(args)
	if outPath == "" {
		return nil, fmt.Errorf("no output path in args")
	}
	if err := os.WriteFile(outPath, f.outputBytes, 0o644); err != nil {
		return nil, err
	}
	return nil, nil
}

func outputPathFromArgs(args []string) string {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-sOutputFile=") {
			return strings.TrimPrefix(arg, "-sOutputFile=")
		}
	}
	return ""
}

func newPDFTestStore(t *testing.T) *repository.LocalStore {
	t.Helper()
	store, err := repository.NewLocalStore(t.TempDir(), []string{"documents"})
	require.NoError(t, err)
	return store
}

func writePDF(t *testing.T, store *repository.LocalStore, size int) string {
	t.Helper()
	path := filepath.Join(store.Root(), "documents", "doc.pdf")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("a"), size), 0o644))
	return path
}

func newPDFCompressor(runner domain.ToolRunner, store *repository.LocalStore) *PDFCompressorImpl {
	return NewPDFCompressor(runner, store, "gs", time.Minute, 150)
}

func TestPDFToolSuccessReplacesOriginal(t *testing.T) {
	store := newPDFTestStore(t)
	path := writePDF(t, store, 3000)
	runner := &fakeRunner{outputBytes: bytes.Repeat([]byte("b"), 1000)}

	c := newPDFCompressor(runner, store)
	size, err := c.Compress(context.Background(), path, 20000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), size)
	assert.Equal(t, 1, runner.calls)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, len(data))
	assertNoTempFiles(t, store.Root())
}

func TestPDFToolOutputLargerKeepsOriginal(t *testing.T) {
	store := newPDFTestStore(t)
	path := writePDF(t, store, 3000)
	runner := &fakeRunner{outputBytes: bytes.Repeat([]byte("b"), 5000)}

	c := newPDFCompressor(runner, store)
	size, err := c.Compress(context.Background(), path, 20000)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), size)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("a"), 3000), data)
	assertNoTempFiles(t, store.Root())
}

func TestPDFToolFailureFallsBackToOriginal(t *testing.T) {
	store := newPDFTestStore(t)
	path := writePDF(t, store, 3000)
	runner := &fakeRunner{err: fmt.Errorf("%w: gs timed out after 1m0s", domain.ErrToolFailure)}

	c := newPDFCompressor(runner, store)
	size, err := c.Compress(context.Background(), path, 20000)
	require.NoError(t, err, "tool failure alone must not reject an in-budget PDF")
	assert.Equal(t, int64(3000), size)
	assertNoTempFiles(t, store.Root())
}

func TestPDFToolFailureWithOversizedOriginal(t *testing.T) {
	store := newPDFTestStore(t)
	path := writePDF(t, store, 25000)
	runner := &fakeRunner{err: fmt.Errorf("%w: gs timed out after 1m0s", domain.ErrToolFailure)}

	c := newPDFCompressor(runner, store)
	_, err := c.Compress(context.Background(), path, 20000)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTooLarge)
	assertNoTempFiles(t, store.Root())
}

func TestPDFStillOverBudgetAfterOptimization(t *testing.T) {
	store := newPDFTestStore(t)
	path := writePDF(t, store, 30000)
	runner := &fakeRunner{outputBytes: bytes.Repeat([]byte("b"), 25000)}

	c := newPDFCompressor(runner, store)
	_, err := c.Compress(context.Background(), path, 20000)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTooLarge)

	// Optimized output was promoted before the budget check rejected it
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 25000, len(data))
	assertNoTempFiles(t, store.Root())
}

func TestPDFNeverGrows(t *testing.T) {
	store := newPDFTestStore(t)
	path := writePDF(t, store, 3000)
	runner := &fakeRunner{outputBytes: bytes.Repeat([]byte("b"), 3000)}

	c := newPDFCompressor(runner, store)
	size, err := c.Compress(context.Background(), path, 20000)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), size)

	// Equal-size output is discarded too: only strictly smaller wins
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("a"), 3000), data)
	assertNoTempFiles(t, store.Root())
}
