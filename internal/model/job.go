package model

import "time"

// JobType identifies the kind of work a job represents.
type JobType string

const (
	JobTypeTranscription JobType = "transcription"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is legal. A job may
// jump straight from pending to a terminal state; intermediate progress
// events are not guaranteed to arrive.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	switch s {
	case JobStatusPending:
		return true
	case JobStatusProcessing:
		return next != JobStatusPending
	}
	return false
}

// Job represents one unit of asynchronous work tied to an uploaded file.
type Job struct {
	ID        string    `json:"id"`
	FileID    string    `json:"fileId"`
	Type      JobType   `json:"type"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Phase     string    `json:"phase,omitempty"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Stale is computed at read time for non-terminal jobs that have gone
	// quiet; it is never persisted.
	Stale bool `json:"stale,omitempty"`
}

// ClampProgress bounds a reported progress percentage to [0, 100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ApplyUpdate merges a partial progress update into the job. Absent fields
// leave the job untouched. It returns false when the update must be discarded
// entirely: the job is already terminal, or the requested status transition
// is invalid.
func (j *Job) ApplyUpdate(u ProgressUpdate) bool {
	if j.Status.Terminal() {
		return false
	}
	if u.Status != nil {
		next := JobStatus(*u.Status)
		if !j.Status.CanTransitionTo(next) {
			return false
		}
		j.Status = next
	}
	if u.Progress != nil {
		j.Progress = ClampProgress(*u.Progress)
	}
	if u.Phase != nil {
		j.Phase = *u.Phase
	}
	if u.Error != nil {
		msg := *u.Error
		j.Error = &msg
	}
	return true
}
