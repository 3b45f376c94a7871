package eventbus

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/event"
)

const (
	streamClientBuffer = 64
	streamWriteTimeout = 5 * time.Second
)

// StreamHub fans domain events out to websocket subscribers. Clients may
// narrow the feed with repeated ?category= query parameters. A client
// that cannot keep up loses events rather than stalling the bus.
type StreamHub struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	origins []string
	logger  *zap.Logger
}

type streamClient struct {
	events     chan event.DomainEvent
	categories []string
}

func (c *streamClient) wants(evt event.DomainEvent) bool {
	return len(c.categories) == 0 || slices.Contains(c.categories, evt.Category)
}

// NewStreamHub creates a hub accepting connections from the given origin
// patterns (empty means same-origin only).
func NewStreamHub(origins []string, logger *zap.Logger) *StreamHub {
	return &StreamHub{
		clients: make(map[*streamClient]struct{}),
		origins: origins,
		logger:  logger.Named("stream"),
	}
}

// HandleEvent queues evt for every interested client.
func (h *StreamHub) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.events <- evt:
		default:
			h.logger.Warn("slow stream client, dropping event", zap.String("id", evt.ID))
		}
	}
	return nil
}

// Clients returns the number of connected subscribers.
func (h *StreamHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *StreamHub) add(categories []string) *streamClient {
	c := &streamClient{events: make(chan event.DomainEvent, streamClientBuffer), categories: categories}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades to WebSocket and streams events until the client
// disconnects.
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	c := h.add(r.URL.Query()["category"])
	defer h.remove(c)

	// The feed is one-way; CloseRead discards client frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.events:
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, evt)
			cancel()
			if err != nil {
				if websocket.CloseStatus(err) == -1 {
					h.logger.Debug("stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
