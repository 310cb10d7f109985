// Package store is the durable record of files and jobs. The job store is
// the single source of truth shared by the dispatcher (create), the progress
// subscriber (update) and the stream server (read); all writes are atomic
// per row so concurrent partial updates never clobber unrelated fields.
package store

import (
	"context"
	"errors"

	"github.com/whisperplaud/api/internal/model"
)

// ErrNotFound is returned when a file or job row does not exist.
var ErrNotFound = errors.New("not found")

// JobStore persists jobs.
type JobStore interface {
	// CreateJob inserts a new job row.
	CreateJob(ctx context.Context, job *model.Job) error

	// GetJob returns the job with the given id, or ErrNotFound.
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// GetLatestJobByFileID returns the most recently created job for a file,
	// or ErrNotFound. Files can accumulate multiple jobs; the newest one is
	// always "the job for this file".
	GetLatestJobByFileID(ctx context.Context, fileID string) (*model.Job, error)

	// ListJobsByFileIDs returns all jobs for the given files, newest first.
	ListJobsByFileIDs(ctx context.Context, fileIDs []string) ([]model.Job, error)

	// ApplyProgress merges a partial update into the matching job row.
	// Fields absent from the update are left unchanged. The write is guarded:
	// terminal jobs are never resurrected and illegal transitions are
	// dropped. It reports whether the update was applied; an unknown job id
	// is (false, nil), not an error.
	ApplyProgress(ctx context.Context, update model.ProgressUpdate) (bool, error)
}

// FileStore persists uploaded file metadata.
type FileStore interface {
	// CreateFile inserts a new file row.
	CreateFile(ctx context.Context, file *model.File) error

	// GetFile returns the file with the given id, or ErrNotFound.
	GetFile(ctx context.Context, id string) (*model.File, error)

	// MarkFileUploaded flips a file's status to uploaded.
	MarkFileUploaded(ctx context.Context, id string) (*model.File, error)

	// ListFiles returns all files, newest first, each joined with its latest
	// job when one exists.
	ListFiles(ctx context.Context) ([]model.FileWithJob, error)

	// DeleteFile removes a file row; job rows cascade with it.
	DeleteFile(ctx context.Context, id string) error
}

// Store is the combined persistence surface.
type Store interface {
	JobStore
	FileStore
}
