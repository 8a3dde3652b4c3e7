package collaboration

import (
	"context"
	"log"
	"sync"
	"time"

	"codecollab/internal/metrics"
)

/*
LEARNING: CONNECTION LIFECYCLE

The Hub is created once in main and injected into the WebSocket handler;
there is no package-level room state.

	Connect:    mirror.Acquire → registry.Join        (now a broadcast target)
	Disconnect: registry.Leave → connection.Close → mirror.Release

Disconnect runs exactly once per connection, whichever of these happens
first: the read loop fails, the janitor finds the connection idle, or the
server shuts down. Leaving the room before the socket is torn down means no
broadcast is attempted against a connection that is going away.
*/

// Hub owns the live connections of this process.
type Hub struct {
	registry *Registry
	relay    *Relay
	mirror   *Mirror

	idleTimeout time.Duration
	sweepEvery  time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHub(registry *Registry, relay *Relay, idleTimeout time.Duration) *Hub {
	return &Hub{
		registry:    registry,
		relay:       relay,
		idleTimeout: idleTimeout,
		sweepEvery:  30 * time.Second,
		done:        make(chan struct{}),
	}
}

// SetMirror enables live content tracking for joined documents.
func (h *Hub) SetMirror(m *Mirror) {
	h.mirror = m
}

// Relay returns the relay inbound deltas are handed to.
func (h *Hub) Relay() *Relay {
	return h.relay
}

// Start begins the janitor loop
func (h *Hub) Start() {
	log.Println("🔄 Starting collaboration hub...")

	h.wg.Add(1)
	go h.cleanupLoop()

	log.Println("✓ Collaboration hub started")
}

// Connect registers c in its document's room.
func (h *Hub) Connect(ctx context.Context, c *Connection) {
	if h.mirror != nil {
		if err := h.mirror.Acquire(ctx, c.DocumentID); err != nil {
			log.Printf("⚠️  %v", err)
		}
	}

	if h.registry.Join(c.DocumentID, c) {
		metrics.ActiveRooms.Inc()
	}
	metrics.ActiveConnections.Inc()

	log.Printf("  Session %s (%s) joined document %s (total: %d)",
		c.ID, c.UserName, c.DocumentID, h.registry.Count(c.DocumentID))
}

// Disconnect deregisters c and then closes it. Calling it again is a no-op.
func (h *Hub) Disconnect(ctx context.Context, c *Connection) {
	c.leaveOnce.Do(func() {
		if h.registry.Leave(c.DocumentID, c) {
			metrics.ActiveRooms.Dec()
		}
		metrics.ActiveConnections.Dec()

		c.Close()

		if h.mirror != nil {
			h.mirror.Release(c.DocumentID)
		}

		log.Printf("  Session %s left document %s (remaining: %d)",
			c.ID, c.DocumentID, h.registry.Count(c.DocumentID))
	})
}

// cleanupLoop periodically closes idle connections and sweeps the mirror
func (h *Hub) cleanupLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.cleanup()
		}
	}
}

// cleanup removes connections that have sent no delta for longer than idleTimeout.
// Learning: a dead peer is dropped by readPump's pong deadline long before this;
// the janitor catches live sockets nobody is typing into.
func (h *Hub) cleanup() {
	now := time.Now()
	for _, c := range h.registry.All() {
		if h.idleTimeout > 0 && now.Sub(c.LastActive()) > h.idleTimeout {
			log.Printf("  Cleaning up inactive session %s", c.ID)
			h.Disconnect(context.Background(), c)
		}
	}

	if h.mirror != nil {
		h.mirror.Sweep()
	}
}

// Shutdown closes every connection and queues unsaved live content.
func (h *Hub) Shutdown(ctx context.Context) {
	log.Println("🛑 Shutting down collaboration hub...")

	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()

	for _, c := range h.registry.All() {
		h.Disconnect(ctx, c)
	}

	if h.mirror != nil {
		h.mirror.FlushAll(ctx)
	}

	log.Println("✓ Collaboration hub shutdown complete")
}
