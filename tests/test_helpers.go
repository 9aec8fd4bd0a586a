package tests

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ordalo/filepress/internal/config"
	"github.com/ordalo/filepress/internal/domain"
	"github.com/stretchr/testify/require"
)

// FakeRunner stands in for ghostscript so e2e tests never spawn a process
type FakeRunner struct {
	// OutputBytes, when set, is written to the tool's output path
	OutputBytes []byte
	// Err simulates a crash or timeout
	Err error
}

func (f *FakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	for _, arg := range args {
		if strings.HasPrefix(arg, "-sOutputFile=") {
			out := strings.TrimPrefix(arg, "-sOutputFile=")
			return nil, os.WriteFile(out, f.OutputBytes, 0o644)
		}
	}
	return nil, fmt.Errorf("no output path in args")
}

var _ domain.ToolRunner = (*FakeRunner)(nil)

// TestConfig builds a minimal config rooted in a per-test temp dir
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Port = "0"
	cfg.Server.MaxUploadSizeMB = 50
	cfg.Server.IdempotencyTTL = time.Minute
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Folders = []string{"images", "documents", "misc"}
	cfg.Compression.Budgets = domain.SizeBudgets{
		Image: 5 * 1024 * 1024,
		PDF:   20 * 1024,
		Other: 10 * 1024,
	}
	cfg.Compression.Ladder = []domain.LadderRung{
		{MaxWidth: 1920, Quality: 80},
		{MaxWidth: 1200, Quality: 40},
		{MaxWidth: 800, Quality: 35},
	}
	cfg.Compression.ImagePolicy = domain.ImagePolicyBestEffort
	cfg.Ghostscript.Binary = "gs"
	cfg.Ghostscript.Timeout = time.Minute
	cfg.Ghostscript.TargetDPI = 150
	require.NoError(t, cfg.Validate())
	return cfg
}

// MultipartBody builds a multipart upload body with a "file" field and any
// extra form fields.
func MultipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

// UploadRequest builds a POST request for the files API
func UploadRequest(t *testing.T, path, filename string, content []byte, fields map[string]string, headers map[string]string) *http.Request {
	t.Helper()
	body, contentType := MultipartBody(t, filename, content, fields)
	req, err := http.NewRequest(http.MethodPost, path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// FlatGIF encodes a small single-color GIF
func FlatGIF(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, gif.Encode(buf, img, nil))
	return buf.Bytes()
}

// NoisyJPEG encodes a random image that lossy compression cannot shrink much
func NoisyJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}
