package stream

import "sync"

// Handle owns the release side of one subscription. Backends hand one out
// with every subscription; closing it stops delivery. Close is idempotent.
type Handle struct {
	once sync.Once
	stop func()
}

// NewHandle wraps an unsubscribe function in a close-once handle.
func NewHandle(stop func()) *Handle {
	return &Handle{stop: stop}
}

// Close releases the subscription. Safe to call repeatedly and on nil.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.stop != nil {
			h.stop()
		}
	})
}

// Group collects the handles a synchronizer acquires so its teardown path
// can release every one of them in a single call. Adding to an already
// closed group closes the handle immediately, which removes the window
// where a subscription acquired during shutdown would leak.
type Group struct {
	mu      sync.Mutex
	closed  bool
	handles []*Handle
}

// Add registers a handle for release on Close.
func (g *Group) Add(h *Handle) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		h.Close()
		return
	}
	g.handles = append(g.handles, h)
	g.mu.Unlock()
}

// Close releases every registered handle exactly once.
func (g *Group) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	handles := g.handles
	g.handles = nil
	g.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}
