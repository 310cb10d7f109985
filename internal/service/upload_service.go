package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/whisperplaud/api/internal/model"
	"github.com/whisperplaud/api/internal/storage"
	"github.com/whisperplaud/api/internal/store"
)

// UploadService runs the two-step upload flow: Prepare hands the browser a
// presigned PUT URL and records the file as uploading; Complete marks it
// uploaded and dispatches the transcription job.
type UploadService struct {
	store         store.FileStore
	objects       storage.ObjectStore
	jobs          *JobService
	sizeLimit     int64
	presignExpiry time.Duration
}

// NewUploadService creates an upload service.
func NewUploadService(st store.FileStore, objects storage.ObjectStore, jobs *JobService, sizeLimit int64, presignExpiry time.Duration) *UploadService {
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	return &UploadService{
		store:         st,
		objects:       objects,
		jobs:          jobs,
		sizeLimit:     sizeLimit,
		presignExpiry: presignExpiry,
	}
}

// ErrFileTooLarge is returned when the declared upload size exceeds the limit.
var ErrFileTooLarge = fmt.Errorf("file size exceeds limit")

// Prepare validates the announced upload, creates the file row and returns
// the presigned URL the client uploads against.
func (s *UploadService) Prepare(ctx context.Context, req *model.UploadPrepareRequest) (*model.UploadPrepareResponse, error) {
	if s.sizeLimit > 0 && req.Size > s.sizeLimit {
		return nil, ErrFileTooLarge
	}

	s3Key := fmt.Sprintf("uploads/%d-%s", time.Now().UnixMilli(), req.Filename)
	uploadURL, err := s.objects.PresignUpload(ctx, s3Key, req.ContentType, s.presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	file := &model.File{
		ID:           uuid.New().String(),
		Filename:     req.Filename,
		OriginalName: req.Filename,
		S3Key:        s3Key,
		S3Bucket:     s.objects.Bucket(),
		Size:         req.Size,
		MimeType:     req.ContentType,
		Status:       model.FileStatusUploading,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateFile(ctx, file); err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	return &model.UploadPrepareResponse{
		FileID:    file.ID,
		UploadURL: uploadURL,
		S3Key:     s3Key,
	}, nil
}

// Complete marks the file uploaded and dispatches its transcription job.
// Dispatch failures propagate so the client learns the job never started.
func (s *UploadService) Complete(ctx context.Context, fileID string) (string, error) {
	file, err := s.store.MarkFileUploaded(ctx, fileID)
	if err != nil {
		return "", err
	}
	jobID, err := s.jobs.Dispatch(ctx, file)
	if err != nil {
		return "", err
	}
	log.Printf("Upload complete for file %s, job %s", fileID, jobID)
	return jobID, nil
}

// List returns all files, each with its latest job.
func (s *UploadService) List(ctx context.Context) ([]model.FileWithJob, error) {
	return s.store.ListFiles(ctx)
}

// Delete removes the uploaded object and its transcript from storage, then
// deletes the file row; job rows cascade with it. Storage deletes are best
// effort so a half-cleaned bucket never strands the database row.
func (s *UploadService) Delete(ctx context.Context, fileID string) error {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	if err := s.objects.RemoveObject(ctx, file.S3Key); err != nil {
		log.Printf("Failed to delete object %s: %v", file.S3Key, err)
	}
	if err := s.objects.RemoveObject(ctx, TranscriptKey(fileID)); err != nil {
		log.Printf("Failed to delete transcript for file %s: %v", fileID, err)
	}

	return s.store.DeleteFile(ctx, fileID)
}
