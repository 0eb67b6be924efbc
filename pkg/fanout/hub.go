package fanout

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pitlane/paddock/pkg/log"
	"github.com/pitlane/paddock/pkg/metrics"
)

// broadcastQueue bounds the hub inbox. Producers block only for the
// instant it takes the hub loop to drain a slot.
const broadcastQueue = 64

// envelope is the wire frame for every push message
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// directMessage targets a single connected client
type directMessage struct {
	target *client
	msg    []byte
}

// Hub tracks connected live-update clients and fans messages out to
// them. All membership mutations and deliveries run on the single run
// goroutine; client send queues are closed there and nowhere else.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	direct     chan directMessage
	stopCh     chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	count      atomic.Int64
	logger     zerolog.Logger
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, broadcastQueue),
		direct:     make(chan directMessage, broadcastQueue),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		logger:     log.WithComponent("fanout"),
	}
}

// run owns the client set until stop is called
func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.stopCh:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(0)
			metrics.PushClients.Set(0)
			return

		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			metrics.PushClients.Set(float64(len(h.clients)))
			h.logger.Info().
				Str("client_id", c.id).
				Str("remote", c.remote).
				Int("clients", len(h.clients)).
				Msg("Live-update client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			delete(h.clients, c)
			close(c.send)
			h.count.Store(int64(len(h.clients)))
			metrics.PushClients.Set(float64(len(h.clients)))
			h.logger.Info().
				Str("client_id", c.id).
				Uint64("dropped", c.dropped.Load()).
				Int("clients", len(h.clients)).
				Msg("Live-update client disconnected")

		case msg := <-h.broadcast:
			for c := range h.clients {
				c.enqueue(msg)
			}

		case dm := <-h.direct:
			if h.clients[dm.target] {
				dm.target.enqueue(dm.msg)
			}
		}
	}
}

// add hands a new client to the run loop. A client arriving after stop
// has its queue closed immediately so its write pump exits.
func (h *Hub) add(c *client) {
	select {
	case h.register <- c:
	case <-h.stopCh:
		close(c.send)
	}
}

// remove detaches a client. Safe to call more than once; the run loop
// ignores clients it no longer tracks.
func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.stopCh:
	}
}

// Broadcast encodes one envelope and queues it for every connected
// client. The payload is marshaled once, not per subscriber.
func (h *Hub) Broadcast(event string, data interface{}) {
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to encode push event")
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.stopCh:
	}
}

// sendTo queues one envelope for a single client, provided it is still
// connected when the run loop processes the message.
func (h *Hub) sendTo(c *client, event string, data interface{}) {
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to encode push event")
		return
	}
	select {
	case h.direct <- directMessage{target: c, msg: msg}:
	case <-h.stopCh:
	}
}

// clientCount reports the number of connected clients
func (h *Hub) clientCount() int {
	return int(h.count.Load())
}

// stop closes every client queue and ends the run loop
func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.done
}
