package repository

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/ordalo/filepress/internal/domain"
)

// LocalStore is the on-disk file store. It owns the data directory layout
// (one subdirectory per allowed folder) and implements domain.Stager so the
// compressors can write candidates next to the canonical file and promote
// them with an atomic rename.
type LocalStore struct {
	root string
}

// StoredFile describes one file in a folder listing
type StoredFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// NewLocalStore creates the data directory and one subdirectory per folder
func NewLocalStore(dataDir string, folders []string) (*LocalStore, error) {
	root, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	for _, folder := range folders {
		if err := os.MkdirAll(filepath.Join(root, folder), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create folder %s: %w", folder, err)
		}
	}
	return &LocalStore{root: root}, nil
}

// Root returns the absolute path of the data directory
func (s *LocalStore) Root() string {
	return s.root
}

// ResolvePath builds the canonical absolute path for a stored file. Each
// segment is reduced to its base name so callers cannot escape the data dir.
// subfolder may be empty.
func (s *LocalStore) ResolvePath(folder, subfolder, name string) (string, error) {
	folder = filepath.Base(strings.TrimSpace(folder))
	name = filepath.Base(strings.TrimSpace(name))
	if folder == "" || folder == "." || folder == ".." {
		return "", fmt.Errorf("invalid folder %q", folder)
	}
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	parts := []string{s.root, folder}
	if subfolder = strings.TrimSpace(subfolder); subfolder != "" {
		sub := filepath.Base(subfolder)
		if sub == "." || sub == ".." {
			return "", fmt.Errorf("invalid subfolder %q", subfolder)
		}
		parts = append(parts, sub)
	}
	parts = append(parts, name)
	return filepath.Join(parts...), nil
}

// NewStoredName generates a random stored name preserving the original
// extension. Random identifiers make canonical-path collisions between
// concurrent uploads impossible unless the caller overrides the name.
func (s *LocalStore) NewStoredName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return ulid.Make().String() + ext
}

// Save writes the upload body to path, creating parent directories as needed
func (s *LocalStore) Save(src io.Reader, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create parent dir: %w", err)
	}
	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

// FileSize returns the byte size of the file at path
func (s *LocalStore) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes the file at path, tolerating files already gone
func (s *LocalStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the files directly inside folder/subfolder, skipping
// directories and any leftover temporary files.
func (s *LocalStore) List(folder, subfolder string) ([]StoredFile, error) {
	dir := filepath.Join(s.root, filepath.Base(folder))
	if subfolder != "" {
		dir = filepath.Join(dir, filepath.Base(subfolder))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]StoredFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || isTempName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, StoredFile{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// TempPath returns a fresh temporary sibling path for path. The ".tmp" marker
// keeps staged candidates recognizable to the startup sweep, and the ULID
// keeps concurrent attempts on the same canonical path from clashing.
func (s *LocalStore) TempPath(path string, ext string) string {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(dir, fmt.Sprintf("%s.%s.tmp%s", base, ulid.Make().String(), ext))
}

// Stage runs write against a temporary sibling of path. On any error the
// temporary file is removed and path is left untouched.
func (s *LocalStore) Stage(path string, ext string, write func(w io.Writer) error) (string, error) {
	tempPath := s.TempPath(path, ext)
	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("staging transform failed: %w", err)
	}
	return tempPath, nil
}

// Promote makes the staged file visible at the canonical path in a single
// atomic rename. Temp paths are siblings of their canonical path, so the
// rename never crosses filesystems.
func (s *LocalStore) Promote(tempPath, canonicalPath string) error {
	if err := os.Rename(tempPath, canonicalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to promote staged file: %w", err)
	}
	return nil
}

// Discard removes an abandoned temporary file immediately
func (s *LocalStore) Discard(tempPath string) {
	if tempPath == "" {
		return
	}
	os.Remove(tempPath)
}

// Sweep removes temporary files left behind by a crashed process. Called once
// at startup; the running pipeline cleans up after itself.
func (s *LocalStore) Sweep() (int, error) {
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isTempName(d.Name()) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func isTempName(name string) bool {
	return strings.Contains(name, ".tmp")
}

// interface guard
var _ domain.Stager = (*LocalStore)(nil)
