package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/whisperplaud/api/internal/service"
	"github.com/whisperplaud/api/pkg/response"
)

type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

func NewTranscriptHandler(transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// Get handles GET /api/transcripts/:fileId
func (h *TranscriptHandler) Get(c *fiber.Ctx) error {
	fileID := c.Params("fileId")
	if fileID == "" {
		return response.ValidationError(c, "File ID is required", nil)
	}

	transcript, err := h.transcripts.Get(c.Context(), fileID)
	if err != nil {
		// The worker writes the transcript only at completion; anything else
		// reads as not-found rather than leaking storage errors.
		return response.NotFound(c, "Transcript not found")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(transcript)
}
