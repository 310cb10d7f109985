package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus used by tests and by single-binary dev runs
// where the worker fixture lives in the same process as the server.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte

	// Published records every publish in order, per channel, so tests can
	// assert on exactly-one-publish behavior.
	published map[string][][]byte
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:      make(map[string][]chan []byte),
		published: make(map[string][][]byte),
	}
}

// Publish delivers payload to every current subscriber of channel. Slow
// subscribers are skipped rather than blocked on; the real bus gives the
// same at-most-once, no-backpressure behavior.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.published[channel] = append(b.published[channel], cp)

	for _, ch := range b.subs[channel] {
		select {
		case ch <- cp:
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered subscription on channel. The channel is
// closed when ctx is cancelled.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// Published returns the payloads published on channel so far.
func (b *MemoryBus) Published(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[channel]...)
}
