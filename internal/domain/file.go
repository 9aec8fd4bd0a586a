package domain

import (
	"path/filepath"
	"strings"
)

// Category determines which compression policy applies to an uploaded file
type Category string

const (
	CategoryImage Category = "image"
	CategoryPDF   Category = "pdf"
	CategoryOther Category = "other"
)

// imageExtensions lists every extension treated as an image upload
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// Classify maps a file extension to its category.
// It is total: any extension it does not recognize falls through to CategoryOther.
// The extension may be passed with or without the leading dot.
func Classify(ext string) Category {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if imageExtensions[ext] {
		return CategoryImage
	}
	if ext == ".pdf" {
		return CategoryPDF
	}
	return CategoryOther
}

// ClassifyPath classifies a file by the extension of its path
func ClassifyPath(path string) Category {
	return Classify(filepath.Ext(path))
}

// LossyOutputName returns the stored name for an uploaded file once the
// image compressor has had its say. PNG keeps its extension because it is
// re-encoded losslessly; every other image format comes out of the encoder
// as JPEG, so the name is rewritten to .jpg to keep the served content type
// honest. Non-image names pass through unchanged.
func LossyOutputName(name string) string {
	ext := filepath.Ext(name)
	if Classify(ext) != CategoryImage {
		return name
	}
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg":
		return name
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}

// ContentTypeForExt returns the MIME type used when serving or mirroring a stored file
func ContentTypeForExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	case "tiff", "tif":
		return "image/tiff"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
