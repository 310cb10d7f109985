package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/whisperplaud/api/internal/model"
	"github.com/whisperplaud/api/internal/service"
	"github.com/whisperplaud/api/internal/store"
	"github.com/whisperplaud/api/pkg/response"
)

// validContentTypes are the media types the transcription pipeline accepts.
var validContentTypes = map[string]bool{
	"audio/wav":       true,
	"audio/x-wav":     true,
	"audio/wave":      true,
	"audio/mpeg":      true,
	"audio/mp3":       true,
	"audio/mp4":       true,
	"audio/x-m4a":     true,
	"audio/aac":       true,
	"audio/x-aac":     true,
	"audio/ogg":       true,
	"audio/flac":      true,
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
}

type FileHandler struct {
	uploads   *service.UploadService
	validator *validator.Validate
}

func NewFileHandler(uploads *service.UploadService, v *validator.Validate) *FileHandler {
	return &FileHandler{uploads: uploads, validator: v}
}

// PrepareUpload handles POST /api/files/upload
func (h *FileHandler) PrepareUpload(c *fiber.Ctx) error {
	var req model.UploadPrepareRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if !validContentTypes[strings.ToLower(req.ContentType)] {
		return response.ValidationError(c, "Unsupported media type", map[string]interface{}{
			"contentType": req.ContentType,
		})
	}

	result, err := h.uploads.Prepare(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrFileTooLarge) {
			return response.ValidationError(c, "File size exceeds limit", map[string]interface{}{
				"fileSize": req.Size,
			})
		}
		return response.ServiceError(c, "Failed to prepare upload")
	}

	return response.OK(c, result)
}

// CompleteUpload handles PATCH /api/files/upload
func (h *FileHandler) CompleteUpload(c *fiber.Ctx) error {
	var req model.UploadCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	jobID, err := h.uploads.Complete(c.Context(), req.FileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "File not found")
		}
		// The upload is durable but no job was started; the client must
		// surface this rather than wait on a job that will never run.
		return response.ServiceError(c, "Job could not be started")
	}

	return response.OK(c, model.UploadCompleteResponse{Success: true, JobID: jobID})
}

// List handles GET /api/files
func (h *FileHandler) List(c *fiber.Ctx) error {
	files, err := h.uploads.List(c.Context())
	if err != nil {
		return response.ServiceError(c, "Failed to list files")
	}
	if files == nil {
		files = []model.FileWithJob{}
	}
	return response.OK(c, model.FileListResponse{Files: files})
}

// Delete handles DELETE /api/files/:id
func (h *FileHandler) Delete(c *fiber.Ctx) error {
	fileID := c.Params("id")
	if fileID == "" {
		return response.ValidationError(c, "File ID is required", nil)
	}

	if err := h.uploads.Delete(c.Context(), fileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "File not found")
		}
		return response.ServiceError(c, "Failed to delete file")
	}

	return response.OK(c, model.DeleteFileResponse{Success: true})
}
