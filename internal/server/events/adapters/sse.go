package adapters

import (
	"strconv"

	"github.com/agentstation/taxamap/internal/server/events"
	"github.com/agentstation/taxamap/internal/server/sse"
)

// SSESubscriber forwards broker events to an SSE broadcaster.
type SSESubscriber struct {
	broadcaster *sse.Broadcaster
}

// NewSSESubscriber creates a subscriber for broadcaster.
func NewSSESubscriber(broadcaster *sse.Broadcaster) *SSESubscriber {
	return &SSESubscriber{broadcaster: broadcaster}
}

// Send implements events.Subscriber. The event id is the publish time in
// nanoseconds so clients can order frames.
func (s *SSESubscriber) Send(event events.Event) error {
	s.broadcaster.Broadcast(sse.Event{
		Event: string(event.Type),
		ID:    strconv.FormatInt(event.Timestamp.UnixNano(), 10),
		Data:  event.Data,
	})
	return nil
}

// Close implements events.Subscriber. The broadcaster stops with its own context.
func (s *SSESubscriber) Close() error {
	return nil
}
