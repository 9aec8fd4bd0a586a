package handler

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/gofiber/fiber/v2"
	"github.com/ordalo/filepress/internal/config"
	"github.com/ordalo/filepress/internal/domain"
	"github.com/ordalo/filepress/internal/repository"
)

// FileHandler handles HTTP requests for file uploads and listings
type FileHandler struct {
	pipeline domain.Pipeline
	store    *repository.LocalStore
	mirror   domain.FileRepository // nil when mirroring is disabled
	cfg      *config.Config
}

// NewFileHandler creates a new file handler
func NewFileHandler(pipeline domain.Pipeline, store *repository.LocalStore, mirror domain.FileRepository, cfg *config.Config) *FileHandler {
	return &FileHandler{
		pipeline: pipeline,
		store:    store,
		mirror:   mirror,
		cfg:      cfg,
	}
}

// Upload handles POST /v1/files/:folder and POST /v1/files/:folder/:subfolder
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	folder := c.Params("folder")
	subfolder := c.Params("subfolder")

	if !h.cfg.AllowedFolder(folder) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   domain.ErrUnknownFolder.Error() + ": " + folder,
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "missing 'file' field in form data",
		})
	}

	// Stored names are random by default; callers may pin a deterministic
	// name, in which case the pipeline serializes writes per path.
	name := c.FormValue("filename")
	if name == "" {
		name = h.store.NewStoredName(fileHeader.Filename)
	}
	// Image formats the encoder cannot emit come back as JPEG, so store
	// them under a .jpg name and the served content type stays honest
	name = domain.LossyOutputName(name)

	filePath, err := h.store.ResolvePath(folder, subfolder, name)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to open uploaded file",
		})
	}
	defer src.Close()

	if _, err := h.store.Save(src, filePath); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to persist uploaded file",
		})
	}

	size, err := h.pipeline.Compress(c.UserContext(), filePath)
	if err != nil {
		return c.Status(statusForError(err)).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	if h.mirror != nil {
		key := path.Join(folder, subfolder, path.Base(filePath))
		if err := mirrorFile(c, h.mirror, filePath, key); err != nil {
			// Replication is best effort; the local store already has the file
			log.Printf("failed to mirror %s: %v", key, err)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"name":    path.Base(filePath),
		"size":    size,
		"url":     "/files/" + path.Join(folder, subfolder, path.Base(filePath)),
	})
}

// List handles GET /v1/files/:folder and GET /v1/files/:folder/:subfolder
func (h *FileHandler) List(c *fiber.Ctx) error {
	folder := c.Params("folder")
	if !h.cfg.AllowedFolder(folder) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   domain.ErrUnknownFolder.Error() + ": " + folder,
		})
	}

	files, err := h.store.List(folder, c.Params("subfolder"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   fmt.Sprintf("folder not found: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"files":   files,
	})
}

func mirrorFile(c *fiber.Ctx, mirror domain.FileRepository, filePath, key string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	_, err = mirror.Upload(c.UserContext(), data, key, domain.ContentTypeForExt(path.Ext(filePath)))
	return err
}

// statusForError maps pipeline failures to HTTP statuses
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrCompressionFailed):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
