package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/whisperplaud/api/internal/model"
)

// Memory is an in-process Store used by tests and by local runs without
// Postgres. Behavior mirrors the Postgres implementation, including the
// terminal-state guard and progress clamping in ApplyProgress.
type Memory struct {
	mu    sync.RWMutex
	jobs  map[string]*model.Job
	files map[string]*model.File

	jobReads atomic.Int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:  make(map[string]*model.Job),
		files: make(map[string]*model.File),
	}
}

// JobReads returns how many single-job reads have been served. Stream tests
// use it to prove polling stops after a client disconnect.
func (m *Memory) JobReads() int64 {
	return m.jobReads.Load()
}

// CreateJob inserts a job.
func (m *Memory) CreateJob(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

// GetJob returns a job by id.
func (m *Memory) GetJob(_ context.Context, id string) (*model.Job, error) {
	m.jobReads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

// GetLatestJobByFileID returns the newest job for a file.
func (m *Memory) GetLatestJobByFileID(_ context.Context, fileID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *model.Job
	for _, job := range m.jobs {
		if job.FileID != fileID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// ListJobsByFileIDs returns all jobs for the given files, newest first.
func (m *Memory) ListJobsByFileIDs(_ context.Context, fileIDs []string) ([]model.Job, error) {
	wanted := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		wanted[id] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var jobs []model.Job
	for _, job := range m.jobs {
		if wanted[job.FileID] {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// ApplyProgress merges a partial update under the store lock. Unknown jobs
// and guarded-off updates report (false, nil).
func (m *Memory) ApplyProgress(_ context.Context, update model.ProgressUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[update.JobID]
	if !ok {
		return false, nil
	}
	return job.ApplyUpdate(update), nil
}

// CreateFile inserts a file.
func (m *Memory) CreateFile(_ context.Context, file *model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *file
	m.files[file.ID] = &cp
	return nil
}

// GetFile returns a file by id.
func (m *Memory) GetFile(_ context.Context, id string) (*model.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	file, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *file
	return &cp, nil
}

// MarkFileUploaded flips the file status to uploaded.
func (m *Memory) MarkFileUploaded(_ context.Context, id string) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	file.Status = model.FileStatusUploaded
	cp := *file
	return &cp, nil
}

// ListFiles returns every file joined with its newest job, newest first.
func (m *Memory) ListFiles(ctx context.Context) ([]model.FileWithJob, error) {
	m.mu.RLock()
	files := make([]model.File, 0, len(m.files))
	for _, f := range m.files {
		files = append(files, *f)
	}
	m.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})

	out := make([]model.FileWithJob, 0, len(files))
	for _, f := range files {
		fw := model.FileWithJob{File: f}
		if job, err := m.GetLatestJobByFileID(ctx, f.ID); err == nil {
			fw.Job = job
		}
		out = append(out, fw)
	}
	return out, nil
}

// DeleteFile removes a file and cascades to its jobs.
func (m *Memory) DeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return ErrNotFound
	}
	delete(m.files, id)
	for jobID, job := range m.jobs {
		if job.FileID == id {
			delete(m.jobs, jobID)
		}
	}
	return nil
}
