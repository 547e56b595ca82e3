package api

import (
	"encoding/json"
	"sync"
)

// SSEEvent is one message on a plan's event topic. Data is already JSON so
// the same value can be written to SSE, WebSocket and Redis unchanged.
type SSEEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newEvent(typ string, v any) SSEEvent {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{}`)
	}
	return SSEEvent{Type: typ, Data: b}
}

// Terminal reports whether no further events follow on the topic.
func (e SSEEvent) Terminal() bool { return e.Type == eventCompleted || e.Type == eventFailed }

type EventBroker interface {
	Subscribe(topic string) chan SSEEvent
	Unsubscribe(topic string, ch chan SSEEvent)
	Publish(topic string, evt SSEEvent)
}

// Broker is the in-process EventBroker. Slow subscribers drop events
// rather than block publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // planId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan SSEEvent {
	ch := make(chan SSEEvent, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan SSEEvent]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Broker) Publish(topic string, evt SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		if evt.Terminal() {
			// make room so the terminal event is never the one dropped
			select {
			case ch <- evt:
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- evt:
				default:
				}
			}
			continue
		}
		select {
		case ch <- evt:
		default:
		}
	}
}
