package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/whisperplaud/api/internal/bus"
	"github.com/whisperplaud/api/internal/model"
	"github.com/whisperplaud/api/internal/store"
)

func testFile(id string) *model.File {
	return &model.File{
		ID:        id,
		Filename:  "visit.mp3",
		S3Key:     "uploads/123-visit.mp3",
		S3Bucket:  "test-bucket",
		Status:    model.FileStatusUploaded,
		CreatedAt: time.Now().UTC(),
	}
}

func TestDispatchCreatesJobAndPublishesOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	mb := bus.NewMemoryBus()
	svc := NewJobService(st, mb, 0)

	jobID, err := svc.Dispatch(ctx, testFile("f1"))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("job row missing: %v", err)
	}
	if job.Status != model.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("progress = %d, want 0", job.Progress)
	}
	if job.FileID != "f1" {
		t.Errorf("fileId = %s, want f1", job.FileID)
	}
	if job.Type != model.JobTypeTranscription {
		t.Errorf("type = %s, want transcription", job.Type)
	}
	if job.Phase == "" {
		t.Error("expected an initial phase")
	}

	published := mb.Published(bus.ChannelNewJob)
	if len(published) != 1 {
		t.Fatalf("published %d messages, want exactly 1", len(published))
	}
	var msg model.NewJobMessage
	if err := json.Unmarshal(published[0], &msg); err != nil {
		t.Fatalf("bad message payload: %v", err)
	}
	if msg.JobID != jobID {
		t.Errorf("message jobId = %s, want %s", msg.JobID, jobID)
	}
	if msg.FileID != "f1" || msg.S3Key != "uploads/123-visit.mp3" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Timestamp == 0 {
		t.Error("expected a timestamp")
	}
}

func TestGetJobFallsBackToLatestByFileID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewJobService(st, bus.NewMemoryBus(), 0)

	older := &model.Job{
		ID: "j-old", FileID: "f1", Type: model.JobTypeTranscription,
		Status: model.JobStatusFailed, CreatedAt: time.Now().Add(-time.Hour),
	}
	newer := &model.Job{
		ID: "j-new", FileID: "f1", Type: model.JobTypeTranscription,
		Status: model.JobStatusProcessing, Progress: 50, CreatedAt: time.Now(),
	}
	if err := st.CreateJob(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateJob(ctx, newer); err != nil {
		t.Fatal(err)
	}

	// Direct job id hit.
	job, err := svc.GetJob(ctx, "j-old")
	if err != nil {
		t.Fatalf("get by job id: %v", err)
	}
	if job.ID != "j-old" {
		t.Errorf("got %s, want j-old", job.ID)
	}

	// Unknown id resolves as a file id to the newest job.
	job, err = svc.GetJob(ctx, "f1")
	if err != nil {
		t.Fatalf("get by file id: %v", err)
	}
	if job.ID != "j-new" {
		t.Errorf("got %s, want j-new (latest for file)", job.ID)
	}

	if _, err := svc.GetJob(ctx, "nope"); err == nil {
		t.Error("expected not-found for unknown id")
	}
}

func TestGetJobMarksStale(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewJobService(st, bus.NewMemoryBus(), time.Minute)

	quiet := &model.Job{
		ID: "j-quiet", FileID: "f1", Status: model.JobStatusPending,
		CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour),
	}
	fresh := &model.Job{
		ID: "j-fresh", FileID: "f2", Status: model.JobStatusProcessing,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	done := &model.Job{
		ID: "j-done", FileID: "f3", Status: model.JobStatusCompleted,
		CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour),
	}
	for _, j := range []*model.Job{quiet, fresh, done} {
		if err := st.CreateJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	job, _ := svc.GetJob(ctx, "j-quiet")
	if !job.Stale {
		t.Error("quiet pending job should be stale")
	}
	job, _ = svc.GetJob(ctx, "j-fresh")
	if job.Stale {
		t.Error("fresh job should not be stale")
	}
	job, _ = svc.GetJob(ctx, "j-done")
	if job.Stale {
		t.Error("terminal job is never stale")
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewJobService(st, bus.NewMemoryBus(), 0)

	for i, id := range []string{"j1", "j2", "j3"} {
		job := &model.Job{
			ID: id, FileID: "f1", Status: model.JobStatusPending,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := svc.ListJobs(ctx, []string{"f1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}
	if jobs[0].ID != "j3" || jobs[2].ID != "j1" {
		t.Errorf("jobs not newest-first: %s, %s, %s", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
}
