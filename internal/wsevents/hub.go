// Package wsevents bridges the Job State Store's push updates (spec §4.4)
// out to WebSocket clients. Grounded on the teacher's
// internal/handlers/websocket.go connection hub (per-connection mutex,
// broadcast-to-all-clients) and internal/handlers/websocket_events.go's
// per-event-type throttling, both generalized from crawl-progress events to
// job-update events.
package wsevents

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/quaero/internal/jobstore"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope every event is broadcast as.
type Message struct {
	Type    string          `json:"type"`
	Payload jobstore.Event  `json:"payload"`
}

// Hub fans out job update events (spec §4.4) to connected WebSocket
// clients. One Hub serves every job; what a connection receives is the
// source channel its caller passes to ServeJobUpdates (one job's channel
// or the all-jobs channel), matching the underlying per-job/broadcast
// channel duality the Job State Store exposes. Each event's payload
// carries its job id in the JobID field.
type Hub struct {
	logger  arbor.ILogger
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex

	throttle *rate.Limiter // rate template: each connection builds one limiter per job from it, capping how often that job's updates are forwarded, spec §9 "no backpressure on subscribers"
}

// NewHub constructs a Hub. minInterval is the minimum spacing between two
// updates for the same job forwarded on one connection; updates arriving
// sooner are dropped (0 disables throttling).
func NewHub(logger arbor.ILogger, minInterval time.Duration) *Hub {
	h := &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
	if minInterval > 0 {
		h.throttle = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return h
}

// ServeJobUpdates upgrades the request to a WebSocket and streams every
// update from source until the client disconnects or source is closed.
func (h *Hub) ServeJobUpdates(w http.ResponseWriter, r *http.Request, source <-chan jobstore.Event) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		}
		return
	}

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Info().Int("clients", h.clientCount()).Msg("websocket client connected")
	}

	defer h.disconnect(conn)

	// Drain inbound frames so the connection stays alive; this hub is
	// send-only, clients never push data back. A read error means the
	// client has gone away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var limiters map[string]*rate.Limiter
	for {
		var event jobstore.Event
		select {
		case <-clientGone:
			return
		case e, ok := <-source:
			if !ok {
				return
			}
			event = e
		}
		if h.throttle != nil {
			lim := limiters[event.JobID]
			if lim == nil {
				if limiters == nil {
					limiters = make(map[string]*rate.Limiter)
				}
				lim = rate.NewLimiter(h.throttle.Limit(), h.throttle.Burst())
				limiters[event.JobID] = lim
			}
			if !lim.Allow() {
				continue
			}
		}
		h.send(conn, event)
	}
}

func (h *Hub) disconnect(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	remaining := len(h.clients)
	h.mu.Unlock()
	conn.Close()
	if h.logger != nil {
		h.logger.Info().Int("clients", remaining).Msg("websocket client disconnected")
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) send(conn *websocket.Conn, event jobstore.Event) {
	data, err := json.Marshal(Message{Type: "job_update", Payload: event})
	if err != nil {
		if h.logger != nil {
			h.logger.Error().Err(err).Msg("failed to marshal job update message")
		}
		return
	}

	h.mu.RLock()
	mutex := h.clients[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if writeErr != nil && h.logger != nil {
		h.logger.Warn().Err(writeErr).Msg("failed to send job update to client")
	}
}
