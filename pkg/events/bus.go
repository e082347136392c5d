package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const DefaultBufferSize = 256

type Channels []chan *EventEnvelope

// EventBus fans events out to the subscribers of their topic. Publishing never
// blocks: a subscriber with a full buffer misses the event.
type EventBus struct {
	mu         sync.RWMutex
	channels   map[string]Channels
	bufferSize int
	closed     bool
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &EventBus{
		channels:   make(map[string]Channels),
		bufferSize: bufferSize,
	}
}

// BroadcastEvent returns how many subscribers received the event.
func (eb *EventBus) BroadcastEvent(event *EventEnvelope) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return 0
	}
	delivered := 0
	for _, channel := range eb.channels[event.Topic] {
		select {
		case channel <- event:
			delivered++
		default:
			log.Warn().Str("topic", event.Topic).Str("record_id", event.RecordID).
				Msg("[EventBus] [BroadcastEvent] subscriber buffer full, event dropped")
		}
	}
	return delivered
}

func (eb *EventBus) Subscribe(topic string) <-chan *EventEnvelope {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	receiver := make(chan *EventEnvelope, eb.bufferSize)
	if eb.closed {
		close(receiver)
		return receiver
	}
	eb.channels[topic] = append(eb.channels[topic], receiver)
	return receiver
}

// Close closes every subscriber channel. Later broadcasts are ignored.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, channels := range eb.channels {
		for _, channel := range channels {
			close(channel)
		}
	}
}
