// internal/server/hub.go
package server

import (
	"sync"

	"ihydro/internal/common/metrics"
	"ihydro/internal/models"
)

// Hub fans accepted readings out to connected stream clients. Clients that
// fall behind lose intermediate readings instead of blocking ingestion.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan models.Reading]struct{}
	latest  *models.Reading
	buffer  int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{clients: make(map[chan models.Reading]struct{}), buffer: buffer}
}

// Subscribe registers a client. The returned func unregisters it and closes
// the channel.
func (h *Hub) Subscribe() (<-chan models.Reading, func()) {
	ch := make(chan models.Reading, h.buffer)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.StreamClients.Set(float64(n))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			n := len(h.clients)
			close(ch)
			h.mu.Unlock()
			metrics.StreamClients.Set(float64(n))
		})
	}
}

func (h *Hub) Broadcast(r models.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = &r
	for ch := range h.clients {
		select {
		case ch <- r:
		default:
		}
	}
}

// Latest returns the most recent broadcast reading.
func (h *Hub) Latest() (models.Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return models.Reading{}, false
	}
	return *h.latest, true
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
