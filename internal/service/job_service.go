package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/whisperplaud/api/internal/bus"
	"github.com/whisperplaud/api/internal/model"
	"github.com/whisperplaud/api/internal/store"
)

// initialPhase is what clients see between upload completion and the first
// worker progress event.
const initialPhase = "Upload complete. Waiting for worker..."

// JobService creates jobs and answers job queries. Dispatching is the
// handoff point between the upload request path and the out-of-process
// worker: one job row plus one job:new publish per completed upload.
type JobService struct {
	store      store.JobStore
	publisher  bus.Publisher
	staleAfter time.Duration
}

// NewJobService creates a job service. staleAfter controls when reads flag a
// quiet non-terminal job as stale; zero disables the flag.
func NewJobService(st store.JobStore, pub bus.Publisher, staleAfter time.Duration) *JobService {
	return &JobService{store: st, publisher: pub, staleAfter: staleAfter}
}

// Dispatch creates a pending job for an uploaded file and announces it on
// the bus. The row insert and the publish are deliberately not transactional:
// a crash in between leaves a pending job with no published event, which
// surfaces to users as a stale job rather than being retried here.
func (s *JobService) Dispatch(ctx context.Context, file *model.File) (string, error) {
	jobID := uuid.New().String()
	now := time.Now().UTC()

	job := &model.Job{
		ID:        jobID,
		FileID:    file.ID,
		Type:      model.JobTypeTranscription,
		Status:    model.JobStatusPending,
		Progress:  0,
		Phase:     initialPhase,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	msg := model.NewJobMessage{
		JobID:     jobID,
		FileID:    file.ID,
		S3Key:     file.S3Key,
		Timestamp: now.UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal job message: %w", err)
	}
	if err := s.publisher.Publish(ctx, bus.ChannelNewJob, payload); err != nil {
		return "", fmt.Errorf("announce job %s: %w", jobID, err)
	}

	log.Printf("Dispatched job %s for file %s", jobID, file.ID)
	return jobID, nil
}

// GetJob resolves id as a job id first, then as a file id (returning that
// file's newest job). The fallback keeps old clients working that only know
// the file id.
func (s *JobService) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		job, err = s.store.GetLatestJobByFileID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	s.markStale(job)
	return job, nil
}

// ListJobs returns all jobs for the given file ids, newest first.
func (s *JobService) ListJobs(ctx context.Context, fileIDs []string) ([]model.Job, error) {
	jobs, err := s.store.ListJobsByFileIDs(ctx, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for i := range jobs {
		s.markStale(&jobs[i])
	}
	return jobs, nil
}

// markStale flags non-terminal jobs whose last update is older than the
// configured threshold. Nothing acts on the flag server-side; it exists so
// a job orphaned by a lost message or dead worker is visible instead of
// showing as perpetually "waiting".
func (s *JobService) markStale(job *model.Job) {
	if s.staleAfter <= 0 || job.Status.Terminal() {
		return
	}
	job.Stale = time.Since(job.UpdatedAt) > s.staleAfter
}
