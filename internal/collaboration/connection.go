package collaboration

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"codecollab/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

// Connection is one client's live WebSocket bound to a document and a user.
// Learning: outbound messages go through a bounded channel drained by
// writePump, so a slow client never blocks the goroutine that broadcasts.
type Connection struct {
	*models.Session

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce  sync.Once
	leaveOnce  sync.Once
	lastActive atomic.Int64
}

// NewConnection wraps an upgraded socket. ws may be nil in tests.
func NewConnection(session *models.Session, ws *websocket.Conn, queueSize int) *Connection {
	c := &Connection{
		Session: session,
		ws:      ws,
		send:    make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
	c.touch()
	return c
}

// Enqueue queues msg for delivery without blocking.
func (c *Connection) Enqueue(msg []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// Close stops the write pump, which closes the socket. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			// unblocks readPump; writePump gets the close frame out first when it can
			c.ws.SetReadDeadline(time.Now())
		}
	})
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// LastActive returns the time of the last message from the client.
// Pongs only keep the read deadline alive; they do not count as activity.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// readPump reads deltas from the socket until it fails, then leaves the hub.
// Learning: Each connection has its own goroutine reading from the WebSocket.
// Deltas are relayed synchronously from here, which keeps per-sender order.
func (c *Connection) readPump(ctx context.Context, h *Hub) {
	defer h.Disconnect(ctx, c)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on session %s: %v", c.ID, err)
			}
			return
		}

		c.touch()
		h.relay.HandleInbound(ctx, c, message)
	}
}

// writePump writes queued messages, one WebSocket frame per delta.
// Learning: Separate goroutine for writing prevents blocking on slow clients
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("⚠️  Write to session %s failed: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
