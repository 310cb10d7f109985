package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whisperplaud/api/internal/model"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool for the given DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// NewPostgres wraps a pool in a Store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the tables if needed. Keeping the migration in code
// lets docker-compose bootstrap a working stack with no extra tooling.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL,
	s3_key TEXT NOT NULL,
	s3_bucket TEXT NOT NULL,
	size BIGINT NOT NULL,
	mime_type TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INT NOT NULL DEFAULT 0,
	phase TEXT,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_file_created ON jobs(file_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CreateJob inserts a job row.
func (s *Postgres) CreateJob(ctx context.Context, job *model.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, file_id, type, status, progress, phase, error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, job.ID, job.FileID, job.Type, job.Status, job.Progress, nullIfEmpty(job.Phase), job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, file_id, type, status, progress, COALESCE(phase,''), error, created_at, updated_at`

// GetJob returns a job by id.
func (s *Postgres) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	return scanJob(row)
}

// GetLatestJobByFileID returns the newest job for a file.
func (s *Postgres) GetLatestJobByFileID(ctx context.Context, fileID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE file_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, fileID)
	return scanJob(row)
}

// ListJobsByFileIDs returns all jobs for the given files, newest first.
func (s *Postgres) ListJobsByFileIDs(ctx context.Context, fileIDs []string) ([]model.Job, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE file_id = ANY($1)
		ORDER BY created_at DESC
	`, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ApplyProgress merges a partial update into the job row in one guarded
// UPDATE. COALESCE keeps absent fields untouched, the status guard refuses
// to resurrect terminal jobs, and processing never falls back to pending.
// Zero rows affected means the job is unknown or terminal; both are no-ops.
func (s *Postgres) ApplyProgress(ctx context.Context, update model.ProgressUpdate) (bool, error) {
	if update.Status != nil && !model.JobStatus(*update.Status).Valid() {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = COALESCE($2, status),
			progress = COALESCE($3, progress),
			phase = COALESCE($4, phase),
			error = COALESCE($5, error),
			updated_at = $6
		WHERE id = $1
		  AND status NOT IN ('completed','failed')
		  AND NOT (status = 'processing' AND COALESCE($2,'') = 'pending')
	`, update.JobID, update.Status, clampedProgress(update.Progress), update.Phase, update.Error, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateFile inserts a file row.
func (s *Postgres) CreateFile(ctx context.Context, file *model.File) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO files (id, filename, original_name, s3_key, s3_bucket, size, mime_type, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, file.ID, file.Filename, file.OriginalName, file.S3Key, file.S3Bucket, file.Size, file.MimeType, file.Status, file.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

const fileColumns = `id, filename, original_name, s3_key, s3_bucket, size, mime_type, status, created_at`

// GetFile returns a file by id.
func (s *Postgres) GetFile(ctx context.Context, id string) (*model.File, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id=$1`, id)
	return scanFile(row)
}

// MarkFileUploaded flips the file status to uploaded and returns the row.
func (s *Postgres) MarkFileUploaded(ctx context.Context, id string) (*model.File, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE files SET status=$2 WHERE id=$1`, id, model.FileStatusUploaded)
	if err != nil {
		return nil, fmt.Errorf("update file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetFile(ctx, id)
}

// ListFiles returns every file joined with its newest job.
func (s *Postgres) ListFiles(ctx context.Context) ([]model.FileWithJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.filename, f.original_name, f.s3_key, f.s3_bucket, f.size, f.mime_type, f.status, f.created_at,
		       j.id, j.type, j.status, j.progress, COALESCE(j.phase,''), j.error, j.created_at, j.updated_at
		FROM files f
		LEFT JOIN LATERAL (
			SELECT * FROM jobs WHERE file_id = f.id ORDER BY created_at DESC LIMIT 1
		) j ON true
		ORDER BY f.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("select files: %w", err)
	}
	defer rows.Close()

	var out []model.FileWithJob
	for rows.Next() {
		var (
			fw       model.FileWithJob
			jobID    sql.NullString
			jobType  sql.NullString
			status   sql.NullString
			progress sql.NullInt32
			phase    sql.NullString
			errMsg   sql.NullString
			created  sql.NullTime
			updated  sql.NullTime
		)
		if err := rows.Scan(
			&fw.ID, &fw.Filename, &fw.OriginalName, &fw.S3Key, &fw.S3Bucket, &fw.Size, &fw.MimeType, &fw.Status, &fw.CreatedAt,
			&jobID, &jobType, &status, &progress, &phase, &errMsg, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		if jobID.Valid {
			job := model.Job{
				ID:        jobID.String,
				FileID:    fw.ID,
				Type:      model.JobType(jobType.String),
				Status:    model.JobStatus(status.String),
				Progress:  int(progress.Int32),
				Phase:     phase.String,
				CreatedAt: created.Time,
				UpdatedAt: updated.Time,
			}
			if errMsg.Valid {
				msg := errMsg.String
				job.Error = &msg
			}
			fw.Job = &job
		}
		out = append(out, fw)
	}
	return out, rows.Err()
}

// DeleteFile removes a file row; jobs cascade via the foreign key.
func (s *Postgres) DeleteFile(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM files WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job    model.Job
		errMsg sql.NullString
	)
	if err := row.Scan(&job.ID, &job.FileID, &job.Type, &job.Status, &job.Progress, &job.Phase, &errMsg, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if errMsg.Valid {
		msg := errMsg.String
		job.Error = &msg
	}
	return &job, nil
}

func scanFile(row rowScanner) (*model.File, error) {
	var file model.File
	if err := row.Scan(&file.ID, &file.Filename, &file.OriginalName, &file.S3Key, &file.S3Bucket, &file.Size, &file.MimeType, &file.Status, &file.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return &file, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clampedProgress(p *int) *int {
	if p == nil {
		return nil
	}
	v := model.ClampProgress(*p)
	return &v
}
