package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"

	"github.com/whisperplaud/api/internal/bus"
	"github.com/whisperplaud/api/internal/model"
	"github.com/whisperplaud/api/internal/store"
)

// ProgressSubscriber is the process-wide listener that applies worker
// progress events to the job store. It is constructed once in main and
// handed to whatever needs to query its liveness; Start is idempotent so a
// second call can never open a duplicate subscription.
//
// The subscriber has no stop path of its own: it runs until the context it
// was started with is cancelled, which in practice is process shutdown.
type ProgressSubscriber struct {
	store      store.JobStore
	subscriber bus.Subscriber

	startOnce sync.Once
	running   atomic.Bool
}

// NewProgressSubscriber creates a subscriber; it does nothing until Start.
func NewProgressSubscriber(st store.JobStore, sub bus.Subscriber) *ProgressSubscriber {
	return &ProgressSubscriber{store: st, subscriber: sub}
}

// Start opens the job:progress subscription and launches the apply loop.
// Repeated calls are no-ops. The returned error is only ever from the first
// call's subscribe attempt.
func (p *ProgressSubscriber) Start(ctx context.Context) error {
	var startErr error
	p.startOnce.Do(func() {
		msgs, err := p.subscriber.Subscribe(ctx, bus.ChannelJobProgress)
		if err != nil {
			startErr = err
			return
		}
		p.running.Store(true)
		go p.run(ctx, msgs)
		log.Printf("Progress subscriber listening on %s", bus.ChannelJobProgress)
	})
	return startErr
}

// Running reports whether the apply loop is live.
func (p *ProgressSubscriber) Running() bool {
	return p.running.Load()
}

func (p *ProgressSubscriber) run(ctx context.Context, msgs <-chan []byte) {
	defer p.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			p.handle(ctx, payload)
		}
	}
}

// handle applies one progress message. Every failure mode is per-message:
// malformed payloads and store errors are logged and dropped, unknown job
// ids are silent no-ops. Nothing here may kill the loop.
func (p *ProgressSubscriber) handle(ctx context.Context, payload []byte) {
	var update model.ProgressUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		log.Printf("Discarding malformed progress message: %v", err)
		return
	}
	if update.JobID == "" {
		log.Printf("Discarding progress message without jobId")
		return
	}

	applied, err := p.store.ApplyProgress(ctx, update)
	if err != nil {
		log.Printf("Failed to apply progress for job %s: %v", update.JobID, err)
		return
	}
	if !applied {
		// Unknown job, terminal job, or an illegal transition. All expected
		// under at-least-once delivery; nothing to do.
		return
	}
	if update.Progress != nil && update.Status != nil {
		log.Printf("[Job %s] %d%% (%s)", update.JobID, model.ClampProgress(*update.Progress), *update.Status)
	}
}
