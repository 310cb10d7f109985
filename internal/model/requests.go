package model

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1"`
	Password string `json:"password" validate:"required,min=1"`
}

// LoginResponse represents the response for a successful login
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// UploadPrepareRequest represents the request body for preparing an upload
type UploadPrepareRequest struct {
	Filename    string `json:"filename" validate:"required,min=1,max=255"`
	ContentType string `json:"contentType" validate:"required,min=1"`
	Size        int64  `json:"size" validate:"required,gt=0"`
}

// UploadPrepareResponse represents the response for a prepared upload
type UploadPrepareResponse struct {
	FileID    string `json:"fileId"`
	UploadURL string `json:"uploadUrl"`
	S3Key     string `json:"s3Key"`
}

// UploadCompleteRequest represents the request body for completing an upload
type UploadCompleteRequest struct {
	FileID string `json:"fileId" validate:"required,min=1"`
}

// UploadCompleteResponse represents the response once a job has been dispatched
type UploadCompleteResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

// DeleteFileResponse represents the response for a file deletion
type DeleteFileResponse struct {
	Success bool `json:"success"`
}

// JobListResponse wraps the jobs returned for a set of file ids
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// FileListResponse wraps the file listing
type FileListResponse struct {
	Files []FileWithJob `json:"files"`
}
