package model

// NewJobMessage is published on the job:new channel when an upload completes.
// The external transcription worker is its consumer; the web tier never
// subscribes to it.
type NewJobMessage struct {
	JobID     string `json:"jobId"`
	FileID    string `json:"fileId"`
	S3Key     string `json:"s3Key"`
	Timestamp int64  `json:"timestamp"`
}

// ProgressUpdate is the payload the worker publishes on the job:progress
// channel. Every field except JobID is optional; absent fields mean "leave
// unchanged". Status and progress are declared as pointers so a zero value
// can be told apart from an omitted field.
type ProgressUpdate struct {
	JobID    string  `json:"jobId"`
	Status   *string `json:"status,omitempty"`
	Progress *int    `json:"progress,omitempty"`
	Phase    *string `json:"phase,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// StreamEvent is one frame of a job progress stream. Status falls back to
// "unknown" when the job row has disappeared under the stream.
type StreamEvent struct {
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	Phase    *string `json:"phase"`
	Error    *string `json:"error"`
}

// StatusUnknown is the stream status reported for a missing job.
const StatusUnknown = "unknown"

// EventFromJob builds the stream frame for a job snapshot. A nil job yields
// the unknown frame.
func EventFromJob(j *Job) StreamEvent {
	if j == nil {
		return StreamEvent{Status: StatusUnknown}
	}
	ev := StreamEvent{
		Status:   string(j.Status),
		Progress: j.Progress,
		Error:    j.Error,
	}
	if j.Phase != "" {
		phase := j.Phase
		ev.Phase = &phase
	}
	return ev
}
