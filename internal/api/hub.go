package api

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

// FrameHub fans decoded frames out to SSE clients. Publishing never blocks;
// a subscriber that falls behind misses frames rather than stalling the
// decode loop.
type FrameHub struct {
	mu          sync.Mutex
	subscribers map[string]chan mmwave.Frame
}

func NewFrameHub() *FrameHub {
	return &FrameHub{subscribers: make(map[string]chan mmwave.Frame)}
}

func (h *FrameHub) Subscribe() (string, chan mmwave.Frame) {
	b := make([]byte, 8)
	rand.Read(b)
	id := hex.EncodeToString(b)

	ch := make(chan mmwave.Frame, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = ch
	return id, ch
}

func (h *FrameHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

func (h *FrameHub) Publish(frame mmwave.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}
