// Package worker contains a development stand-in for the external
// transcription worker. The real worker is a separate process (GPU host,
// different runtime) that talks to this system only through the notification
// bus and object storage; this simulator speaks the same wire contract so
// the full pipeline can run on a laptop, and doubles as the progress-event
// fixture in tests.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/whisperplaud/api/internal/bus"
	"github.com/whisperplaud/api/internal/model"
	"github.com/whisperplaud/api/internal/storage"
)

// step is one staged progress emission.
type step struct {
	progress int
	phase    string
}

var steps = []step{
	{5, "Downloading audio file..."},
	{10, "Transcribing audio with Whisper..."},
	{40, "Processing audio segments..."},
	{75, "Applying medical term corrections..."},
	{90, "Saving transcript..."},
}

// Simulator consumes job:new and emits a staged progress sequence ending in
// a completed job and a placeholder transcript document.
type Simulator struct {
	bus       bus.Bus
	objects   storage.ObjectStore
	stepDelay time.Duration
}

// NewSimulator creates a simulator. objects may be nil, in which case the
// transcript upload is skipped. stepDelay of zero runs the sequence without
// pauses (useful in tests).
func NewSimulator(b bus.Bus, objects storage.ObjectStore, stepDelay time.Duration) *Simulator {
	return &Simulator{bus: b, objects: objects, stepDelay: stepDelay}
}

// Run subscribes to job:new and processes jobs until ctx is cancelled.
func (w *Simulator) Run(ctx context.Context) error {
	msgs, err := w.bus.Subscribe(ctx, bus.ChannelNewJob)
	if err != nil {
		return err
	}
	log.Printf("Worker simulator listening on %s", bus.ChannelNewJob)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			var msg model.NewJobMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Printf("Skipping malformed job message: %v", err)
				continue
			}
			if err := w.Process(ctx, msg); err != nil {
				log.Printf("Job %s failed: %v", msg.JobID, err)
			}
		}
	}
}

// Process runs the staged progress sequence for one job.
func (w *Simulator) Process(ctx context.Context, msg model.NewJobMessage) error {
	log.Printf("Processing job %s for file %s (%s)", msg.JobID, msg.FileID, msg.S3Key)

	for _, s := range steps {
		if err := w.publishProgress(ctx, msg.JobID, model.JobStatusProcessing, s.progress, s.phase, nil); err != nil {
			return err
		}
		if w.stepDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.stepDelay):
			}
		}
	}

	if w.objects != nil {
		transcript := placeholderTranscript(msg)
		key := fmt.Sprintf("transcripts/%s.json", msg.FileID)
		if err := w.objects.PutObject(ctx, key, transcript, "application/json"); err != nil {
			errMsg := err.Error()
			_ = w.publishProgress(ctx, msg.JobID, model.JobStatusFailed, 0, "Error: saving transcript failed", &errMsg)
			return err
		}
	}

	return w.publishProgress(ctx, msg.JobID, model.JobStatusCompleted, 100, "Completed", nil)
}

func (w *Simulator) publishProgress(ctx context.Context, jobID string, status model.JobStatus, progress int, phase string, errMsg *string) error {
	st := string(status)
	update := model.ProgressUpdate{
		JobID:    jobID,
		Status:   &st,
		Progress: &progress,
		Phase:    &phase,
		Error:    errMsg,
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return w.bus.Publish(ctx, bus.ChannelJobProgress, payload)
}

func placeholderTranscript(msg model.NewJobMessage) []byte {
	doc := map[string]interface{}{
		"text":      "(simulated transcript)",
		"segments":  []interface{}{},
		"language":  "ja",
		"duration":  0,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    msg.S3Key,
	}
	data, _ := json.Marshal(doc)
	return data
}
