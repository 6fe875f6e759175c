package event

import (
	"sync"
	"time"
)

type Bus struct {
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
	}
}

func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subscribers[ch] = struct{}{}
	return ch
}

func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subscribers {
		if (<-chan Event)(s) == ch {
			delete(b.subscribers, s)
			close(s)
			break
		}
	}
}

// Publish fans event out without blocking; a subscriber whose buffer is
// full misses it.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) PublishProgress(p ProgressEvent) {
	b.Publish(Event{Type: UploadProgress, Data: p})
}

func (b *Bus) PublishLifecycle(t EventType, id string, data any, err error) {
	ev := LifecycleEvent{
		Type:      t,
		ID:        id,
		Data:      data,
		Timestamp: time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	b.Publish(Event{Type: t, Timestamp: ev.Timestamp, Data: ev})
}

// PublishRemote forwards a message pushed by the file host.
func (b *Bus) PublishRemote(r RemoteEvent) {
	b.Publish(Event{Type: Remote, Data: r})
}
