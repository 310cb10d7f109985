// Package bus is the notification channel between the web tier and the
// transcription worker. The two sides share nothing but Redis: the dispatcher
// publishes new work on ChannelNewJob, the worker publishes progress on
// ChannelJobProgress, and each message is a standalone JSON document so a
// non-Go worker can take part.
package bus

import "context"

// Pub/sub channel names. The worker subscribes to job:new and publishes on
// job:progress; the server does the reverse.
const (
	ChannelNewJob      = "job:new"
	ChannelJobProgress = "job:progress"
)

// Publisher sends one message to a channel. Implementations must not retain
// connection state across calls beyond what their client library pools.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber delivers messages from a channel until ctx is cancelled. The
// returned channel is closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus is the full pub/sub surface.
type Bus interface {
	Publisher
	Subscriber
}
