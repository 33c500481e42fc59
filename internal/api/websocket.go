package api

import (
	"sync"

	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// hub fans tracker notifications out to connected websocket clients.
type hub struct {
	mu      sync.Mutex
	clients map[chan health.Notification]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[chan health.Notification]struct{})}
}

func (h *hub) add() chan health.Notification {
	ch := make(chan health.Notification, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) remove(ch chan health.Notification) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast never blocks; a client that falls behind loses messages.
func (h *hub) broadcast(n health.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- n:
		default:
		}
	}
}

func (s *Server) handleNotificationSocket(c *websocket.Conn) {
	ch := s.hub.add()
	defer s.hub.remove(ch)

	s.metrics.IncrementActiveConnections()
	defer s.metrics.DecrementActiveConnections()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case n := <-ch:
			if err := c.WriteJSON(n); err != nil {
				s.logger.Warn("WebSocket write error", zap.Error(err))
				return
			}
		}
	}
}
