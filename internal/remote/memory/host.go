package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/sendme/internal/remote"
)

// ImageHost is an in-memory remote.ImageHost. Uploads are kept so tests can
// assert on them; URLs are deterministic.
type ImageHost struct {
	mu      sync.Mutex
	uploads [][]byte
	err     error
}

// NewImageHost creates an empty host.
func NewImageHost() *ImageHost { return &ImageHost{} }

// Upload stores the bytes and returns a mem:// URL.
func (h *ImageHost) Upload(_ context.Context, data []byte, _ string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return "", h.err
	}
	h.uploads = append(h.uploads, data)
	return fmt.Sprintf("mem://images/%d", len(h.uploads)), nil
}

// SetErr makes every Upload fail with err until cleared with nil.
func (h *ImageHost) SetErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// UploadCount returns how many uploads succeeded.
func (h *ImageHost) UploadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.uploads)
}

// PushRecorder is a remote.PushRelay that records every notification.
type PushRecorder struct {
	mu   sync.Mutex
	sent []remote.Notification
}

// NewPushRecorder creates an empty recorder.
func NewPushRecorder() *PushRecorder { return &PushRecorder{} }

// Notify records the notification.
func (r *PushRecorder) Notify(_ context.Context, n remote.Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *PushRecorder) Sent() []remote.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]remote.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
