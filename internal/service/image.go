package service

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ordalo/filepress/internal/domain"

	// webp uploads are decodable even though output is always jpeg/png
	_ "golang.org/x/image/webp"
)

// Decode-side caps against inputs that lie about their dimensions
const (
	maxImageDimension = 16384
	maxImagePixels    = int64(64 * 1024 * 1024)
)

// ImageCompressorImpl implements domain.ImageCompressor with a best-effort
// ladder of decreasing (width, quality) passes. Each pass stages a candidate
// next to the original; the smallest candidate seen so far is retained and
// the rest are discarded immediately. The ladder stops early as soon as a
// candidate fits the budget.
type ImageCompressorImpl struct {
	stager domain.Stager
	ladder []domain.LadderRung
	policy domain.ImagePolicy
}

// NewImageCompressor creates a new image compressor
func NewImageCompressor(stager domain.Stager, ladder []domain.LadderRung, policy domain.ImagePolicy) *ImageCompressorImpl {
	return &ImageCompressorImpl{
		stager: stager,
		ladder: ladder,
		policy: policy,
	}
}

// Compress reduces the image at path toward budget and returns the stored
// size. Under the best-effort policy it never fails once the image decodes:
// when no rung meets budget the smallest candidate is stored anyway. A
// candidate is only promoted if it is smaller than the original, so
// re-running the pipeline never grows a file.
func (c *ImageCompressorImpl) Compress(ctx context.Context, path string, budget int64) (int64, error) {
	origInfo, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat image: %w", err)
	}
	origSize := origInfo.Size()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return 0, fmt.Errorf("%w: decode: %v", domain.ErrCompressionFailed, err)
	}
	bounds := img.Bounds()
	if err := validateBounds(bounds.Dx(), bounds.Dy()); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrCompressionFailed, err)
	}

	// PNG stays PNG; every other image extension re-encodes to JPEG
	isPNG := strings.EqualFold(filepath.Ext(path), ".png")
	outExt := ".jpg"
	wantFormat := "jpeg"
	if isPNG {
		outExt = ".png"
		wantFormat = "png"
	}

	// Uploads in formats the encoder cannot emit are stored under a .jpg
	// name before they reach us, so the bytes on disk may not match the
	// extension yet. In that case the original is not a keepable result.
	mustConvert := false
	if format := sniffFormat(path); format != "" && format != wantFormat {
		mustConvert = true
	}

	bestPath := ""
	bestSize := int64(-1)
	defer func() {
		if bestPath != "" {
			c.stager.Discard(bestPath)
		}
	}()

	for _, rung := range c.ladder {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		candidate := img
		if bounds.Dx() > rung.MaxWidth {
			candidate = imaging.Resize(img, rung.MaxWidth, 0, imaging.Lanczos)
		}

		tempPath, err := c.stager.Stage(path, outExt, func(w io.Writer) error {
			if isPNG {
				return imaging.Encode(w, candidate, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
			}
			return imaging.Encode(w, candidate, imaging.JPEG, imaging.JPEGQuality(rung.Quality))
		})
		if err != nil {
			// One bad pass is not fatal; the next rung may still succeed
			log.Printf("image pass %dpx/q%d failed for %s: %v", rung.MaxWidth, rung.Quality, path, err)
			continue
		}

		size, err := fileSize(tempPath)
		if err != nil {
			c.stager.Discard(tempPath)
			continue
		}

		if bestSize < 0 || size < bestSize {
			if bestPath != "" {
				c.stager.Discard(bestPath)
			}
			bestPath, bestSize = tempPath, size
		} else {
			c.stager.Discard(tempPath)
		}

		if size <= budget {
			break
		}
	}

	if bestPath == "" {
		return 0, fmt.Errorf("%w: all %d passes failed", domain.ErrCompressionFailed, len(c.ladder))
	}

	// Keep the original when no candidate actually beats it
	if bestSize >= origSize && !mustConvert {
		c.stager.Discard(bestPath)
		bestPath = ""
		if c.policy == domain.ImagePolicyStrict && origSize > budget {
			return 0, fmt.Errorf("%w: best result %d bytes over budget %d", domain.ErrCompressionFailed, origSize, budget)
		}
		return origSize, nil
	}

	if c.policy == domain.ImagePolicyStrict && bestSize > budget {
		return 0, fmt.Errorf("%w: best result %d bytes over budget %d", domain.ErrCompressionFailed, bestSize, budget)
	}

	if err := c.stager.Promote(bestPath, path); err != nil {
		bestPath = ""
		return 0, err
	}
	bestPath = ""
	return bestSize, nil
}

func validateBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image bounds invalid (%d x %d)", width, height)
	}
	if width > maxImageDimension || height > maxImageDimension {
		return fmt.Errorf("image dimension exceeds limit (%d x %d)", width, height)
	}
	if int64(width)*int64(height) > maxImagePixels {
		return fmt.Errorf("image pixel count exceeds limit")
	}
	return nil
}

// sniffFormat reports the registered decoder name for the bytes at path,
// or "" when the header is unreadable
func sniffFormat(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return ""
	}
	return format
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

var _ domain.ImageCompressor = (*ImageCompressorImpl)(nil)
