package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"codecollab/internal/delta"
	"codecollab/internal/editor"
	"codecollab/internal/reconciler"

	"github.com/gorilla/websocket"
)

/*
LEARNING: CLIENT SESSION

	FetchDocument ──▶ Buffer(snapshot) ──▶ dial WebSocket
	                                         │
	        readLoop ──Receive──▶ Reconciler.Run ◀──Edit── user
	                                   │
	                          Buffer change notification
	                                   │ (Idle only)
	                                   ▼
	                   transport.Send ──▶ writeLoop ──▶ socket

The document is fetched before anything is dialed: a missing document or a
denied user fails Open without a socket ever being opened.
*/

var ErrSendQueueFull = errors.New("send queue full")

// Session is an open document: a local buffer kept in sync with the room.
type Session struct {
	DocumentID string
	Title      string

	buffer     *editor.Buffer
	reconciler *reconciler.Reconciler
	transport  *wsTransport

	cancel context.CancelFunc
	done   chan struct{}
}

// Open fetches documentID and joins its live session.
func (c *Client) Open(ctx context.Context, documentID string) (*Session, error) {
	doc, err := c.FetchDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	wsURL, err := c.socketURL(documentID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	c.setIdentity(header)

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			if serr := statusError(resp); serr != nil {
				return nil, serr
			}
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	buffer := editor.NewBuffer(doc.Content)
	transport := newWSTransport(conn, 64)
	rec := reconciler.New(buffer, transport)

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		DocumentID: doc.ID,
		Title:      doc.Title,
		buffer:     buffer,
		reconciler: rec,
		transport:  transport,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		rec.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		transport.writeLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		s.readLoop()
	}()
	go func() {
		wg.Wait()
		close(s.done)
	}()

	log.Printf("✓ Joined document %s (%q)", doc.ID, doc.Title)
	return s, nil
}

// readLoop hands every inbound message to the reconciler until the socket fails.
func (s *Session) readLoop() {
	defer s.cancel()
	defer s.transport.markClosed()

	for {
		_, msg, err := s.transport.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️  Connection to document %s lost: %v", s.DocumentID, err)
			}
			return
		}
		if err := s.reconciler.Receive(msg); err != nil {
			return
		}
	}
}

// Text returns the local buffer contents.
func (s *Session) Text() string {
	return s.buffer.Text()
}

// Edit applies a local edit; peers receive it if the connection is open.
func (s *Session) Edit(ops ...delta.Operation) error {
	return s.reconciler.Edit(ops...)
}

// Append types text at the end of the buffer.
func (s *Session) Append(text string) error {
	return s.reconciler.Do(func() {
		line, col := s.buffer.End()
		if err := s.buffer.ApplyEdits([]delta.Operation{delta.Insert(line, col, text)}); err != nil {
			log.Printf("⚠️  Local edit rejected: %v", err)
		}
	})
}

// Stats returns the reconciler's counters.
func (s *Session) Stats() (reconciler.Stats, error) {
	ch := make(chan reconciler.Stats, 1)
	if err := s.reconciler.Do(func() { ch <- s.reconciler.Stats() }); err != nil {
		return reconciler.Stats{}, err
	}
	select {
	case st := <-ch:
		return st, nil
	case <-s.done:
		return reconciler.Stats{}, reconciler.ErrStopped
	}
}

// Done is closed once the session has fully stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close leaves the document and waits for the session to stop.
func (s *Session) Close() {
	s.transport.close()
	s.cancel()
	<-s.done
}

// wsTransport is the reconciler's view of the socket. Send never blocks the
// event loop; a single writer goroutine owns all writes.
type wsTransport struct {
	conn   *websocket.Conn
	out    chan []byte
	open   atomic.Bool
	closed chan struct{}
	once   sync.Once
}

func newWSTransport(conn *websocket.Conn, queueSize int) *wsTransport {
	t := &wsTransport{
		conn:   conn,
		out:    make(chan []byte, queueSize),
		closed: make(chan struct{}),
	}
	t.open.Store(true)
	return t
}

func (t *wsTransport) Ready() bool {
	return t.open.Load()
}

func (t *wsTransport) Send(msg []byte) error {
	if !t.open.Load() {
		return websocket.ErrCloseSent
	}
	select {
	case t.out <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (t *wsTransport) writeLoop(ctx context.Context) {
	defer t.conn.Close()
	for {
		select {
		case <-ctx.Done():
			// Close cancels right after closing t.closed; the close frame still goes out
			select {
			case <-t.closed:
				t.sendClose()
			default:
			}
			return
		case <-t.closed:
			t.sendClose()
			return
		case msg := <-t.out:
			t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("⚠️  Failed to send delta: %v", err)
				t.markClosed()
				return
			}
		}
	}
}

func (t *wsTransport) sendClose() {
	t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (t *wsTransport) markClosed() {
	t.open.Store(false)
}

// close sends a close frame and unblocks the reader.
func (t *wsTransport) close() {
	t.once.Do(func() {
		t.markClosed()
		close(t.closed)
		t.conn.SetReadDeadline(time.Now().Add(time.Second))
	})
}
