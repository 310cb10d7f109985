package service

import (
	"context"
	"errors"
	"time"

	"github.com/whisperplaud/api/internal/model"
	"github.com/whisperplaud/api/internal/store"
)

// StreamServer feeds per-client job progress streams by polling the job
// store on a fixed interval. It is deliberately not wired to the bus: the
// store decouples stream fan-out from the single progress subscription, so
// any number of clients costs reads, not subscriptions.
type StreamServer struct {
	store        store.JobStore
	pollInterval time.Duration
	maxLifetime  time.Duration
}

// NewStreamServer creates a stream server. pollInterval defaults to one
// second and maxLifetime to ten minutes when zero.
func NewStreamServer(st store.JobStore, pollInterval, maxLifetime time.Duration) *StreamServer {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if maxLifetime <= 0 {
		maxLifetime = 10 * time.Minute
	}
	return &StreamServer{store: st, pollInterval: pollInterval, maxLifetime: maxLifetime}
}

// Serve polls jobID and hands each state snapshot to emit until the job
// reaches a terminal state, the job disappears, emit fails (client gone),
// a store read fails, ctx is cancelled, or the lifetime cap expires.
//
// The first poll happens synchronously so a client sees current state
// without waiting out a full tick. A missing job emits one "unknown" frame
// and closes; a terminal job emits its final frame and closes. Store read
// errors close the stream without emitting. The ticker is released on every
// exit path.
func (s *StreamServer) Serve(ctx context.Context, jobID string, emit func(model.StreamEvent) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.maxLifetime)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		done, err := s.pushOnce(ctx, jobID, emit)
		if err != nil || done {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// pushOnce performs one poll-and-emit cycle. done means the stream should
// close cleanly after this event.
func (s *StreamServer) pushOnce(ctx context.Context, jobID string, emit func(model.StreamEvent) error) (done bool, err error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// Internal fetch error: emit nothing further and close.
		return true, err
	}

	ev := model.EventFromJob(job)
	if err := emit(ev); err != nil {
		// Client is gone; stop polling immediately.
		return true, nil
	}

	if job == nil || job.Status.Terminal() {
		return true, nil
	}
	return false, nil
}
