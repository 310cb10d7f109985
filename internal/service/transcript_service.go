package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/whisperplaud/api/internal/storage"
)

// TranscriptKey is where the worker stores a file's transcript document.
func TranscriptKey(fileID string) string {
	return fmt.Sprintf("transcripts/%s.json", fileID)
}

// TranscriptService fetches transcript documents written by the worker.
type TranscriptService struct {
	objects storage.ObjectStore
}

// NewTranscriptService creates a transcript service.
func NewTranscriptService(objects storage.ObjectStore) *TranscriptService {
	return &TranscriptService{objects: objects}
}

// Get returns the transcript JSON for a file. The document is produced by
// the worker and stored as-is; it is validated as JSON but otherwise passed
// through untouched.
func (s *TranscriptService) Get(ctx context.Context, fileID string) (json.RawMessage, error) {
	data, err := s.objects.GetObject(ctx, TranscriptKey(fileID))
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("transcript for file %s is not valid JSON", fileID)
	}
	return json.RawMessage(data), nil
}
