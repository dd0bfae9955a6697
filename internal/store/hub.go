package store

import (
	"context"
	"sync"
)

// Hub fans collection snapshots out to subscribers. Each subscriber channel
// buffers a single snapshot; a newer one replaces whatever is still unread.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan []Document]struct{}
	closed bool
	done   chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan []Document]struct{}),
		done: make(chan struct{}),
	}
}

// Subscribe registers a subscriber seeded with initial. The channel is closed
// when ctx is done or the hub closes.
func (h *Hub) Subscribe(ctx context.Context, collection string, initial []Document) <-chan []Document {
	ch := make(chan []Document, 1)
	ch <- initial

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[chan []Document]struct{})
	}
	h.subs[collection][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.remove(collection, ch)
		case <-h.done:
		}
	}()

	return ch
}

func (h *Hub) remove(collection string, ch chan []Document) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[collection][ch]; ok {
		delete(h.subs[collection], ch)
		close(ch)
	}
}

// Publish hands snapshot to every subscriber of collection without blocking.
func (h *Hub) Publish(collection string, snapshot []Document) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[collection] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Subscribers reports how many readers are attached to collection.
func (h *Hub) Subscribers(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for _, subs := range h.subs {
		for ch := range subs {
			close(ch)
		}
	}
	h.subs = nil
}
