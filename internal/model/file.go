package model

import "time"

// FileStatus tracks an upload through its two-step lifecycle: a row is
// created when the client asks for a presigned URL, and flipped to uploaded
// once the client confirms the PUT finished.
type FileStatus string

const (
	FileStatusUploading FileStatus = "uploading"
	FileStatusUploaded  FileStatus = "uploaded"
)

// File represents an uploaded audio/video artifact.
type File struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	OriginalName string     `json:"originalName"`
	S3Key        string     `json:"s3Key"`
	S3Bucket     string     `json:"s3Bucket"`
	Size         int64      `json:"size"`
	MimeType     string     `json:"mimeType"`
	Status       FileStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// FileWithJob is the file-listing row: a file joined with its most recently
// created job, if any. A file can accumulate more than one job; readers
// always resolve "the job for this file" to the newest one.
type FileWithJob struct {
	File
	Job *Job `json:"job,omitempty"`
}
