package logging

import "sync"

const defaultSubscriberBuffer = 100

type hubSubscriber struct {
	ch       chan LogEntry
	minLevel Level
	category string
}

// LogHub pushes entries to live subscribers. A subscriber whose buffer is
// full misses entries; the logger never waits on it.
type LogHub struct {
	mu     sync.Mutex
	subs   map[*hubSubscriber]struct{}
	closed bool
}

func NewLogHub() *LogHub {
	return &LogHub{subs: make(map[*hubSubscriber]struct{})}
}

// Subscribe registers a subscriber that receives entries at or above minLevel,
// restricted to category when it is set. The returned func unsubscribes and
// closes the channel.
func (h *LogHub) Subscribe(minLevel Level, category string, buffer int) (<-chan LogEntry, func()) {
	if h == nil {
		return nil, func() {}
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	sub := &hubSubscriber{
		ch:       make(chan LogEntry, buffer),
		minLevel: minLevel,
		category: category,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.remove(sub) })
	}
}

func (h *LogHub) remove(sub *hubSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

func (h *LogHub) Broadcast(entry LogEntry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !entry.Matches(sub.minLevel, sub.category) {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
		}
	}
}

func (h *LogHub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscribers get a closed channel.
func (h *LogHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
