package collaboration

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"codecollab/internal/delta"
	"codecollab/internal/metrics"
	"codecollab/internal/middleware"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

/*
LEARNING: BROADCAST RELAY

	client A ──delta──▶ readPump(A) ──▶ Relay.HandleInbound
	                                      │ parse (malformed → drop, keep connection)
	                                      │ Members(doc) snapshot
	                                      ├──▶ B.send (non-blocking)
	                                      ├──▶ C.send (non-blocking)
	                                      └──▶ bus (other instances), mirror

Each sender's deltas are enqueued from its own read goroutine, one after the
other, and each peer drains its queue in order: per-sender FIFO holds.
Between different senders the order is whatever the relay saw first.
The sender is excluded by connection identity, never by user, so a user's
second tab still receives the first tab's edits.

Publishing to the bus never runs on a read goroutine. Accepted deltas go
into a bounded outbox drained by one publisher goroutine, in enqueue order;
when the outbox is full the delta is dropped for other instances only.
A stalled Redis therefore costs remote peers some deltas, never local ones.
*/

const (
	publishQueueSize = 256
	publishTimeout   = 2 * time.Second
)

type outbound struct {
	ctx        context.Context
	documentID string
	senderID   string
	msg        []byte
}

// ContentMirror keeps a live copy of each open document.
type ContentMirror interface {
	Apply(documentID string, d delta.Delta) error
}

// Publisher forwards accepted deltas to relays on other instances.
type Publisher interface {
	Publish(ctx context.Context, documentID, senderID string, msg []byte) error
}

// Relay fans a delta out to the other members of its room.
type Relay struct {
	registry *Registry
	mirror   ContentMirror
	bus      Publisher

	outbox   chan outbound
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// SetMirror enables live content tracking.
func (r *Relay) SetMirror(m ContentMirror) {
	r.mirror = m
}

// SetPublisher enables cross-instance fan-out and starts the publisher
// goroutine. Call it once, before the relay handles traffic.
func (r *Relay) SetPublisher(p Publisher) {
	r.setPublisher(p, publishQueueSize)
}

func (r *Relay) setPublisher(p Publisher, queueSize int) {
	r.bus = p
	r.outbox = make(chan outbound, queueSize)
	r.stop = make(chan struct{})

	r.wg.Add(1)
	go r.publishLoop()
}

// Close stops the publisher goroutine. Deltas still in the outbox are dropped.
func (r *Relay) Close() {
	if r.stop == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// enqueuePublish hands msg to the publisher goroutine without blocking.
func (r *Relay) enqueuePublish(ctx context.Context, documentID, senderID string, msg []byte) {
	select {
	case r.outbox <- outbound{ctx: ctx, documentID: documentID, senderID: senderID, msg: msg}:
	default:
		metrics.DeltasDropped.WithLabelValues(metrics.ReasonBusBacklog).Inc()
		middleware.AddSpanEvent(ctx, "delta.publish_dropped")
		log.Printf("⚠️  Bus backlog full, delta for document %s not published", documentID)
	}
}

// publishLoop drains the outbox one delta at a time, each bounded by publishTimeout.
func (r *Relay) publishLoop() {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-r.stop:
			return
		case out := <-r.outbox:
			r.publish(ctx, out)
		}
	}
}

func (r *Relay) publish(ctx context.Context, out outbound) {
	// keep the publish in the trace of the delta that caused it
	ctx = trace.ContextWithSpanContext(ctx, trace.SpanContextFromContext(out.ctx))
	ctx, span := middleware.StartSpan(ctx, "Relay.Publish",
		attribute.String("session.id", out.senderID),
		attribute.String("document.id", out.documentID),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.bus.Publish(ctx, out.documentID, out.senderID, out.msg); err != nil {
		middleware.AddSpanError(ctx, err)
		log.Printf("⚠️  Failed to publish delta for document %s: %v", out.documentID, err)
	}
}

// HandleInbound relays raw from sender to every other connection in sender's room.
// It returns the number of peers the delta was queued for. A malformed payload
// is discarded and reported; it never closes the connection.
func (r *Relay) HandleInbound(ctx context.Context, sender *Connection, raw []byte) (int, error) {
	ctx, span := middleware.StartSpan(ctx, "Relay.HandleInbound",
		attribute.String("session.id", sender.ID),
		attribute.String("document.id", sender.DocumentID),
		attribute.Int("message.size", len(raw)),
	)
	defer span.End()

	d, form, err := delta.Parse(raw)
	if err != nil {
		metrics.DeltasMalformed.Inc()
		middleware.AddSpanEvent(ctx, "delta.malformed", attribute.String("error", err.Error()))
		log.Printf("⚠️  Discarding malformed message from session %s on document %s: %v",
			sender.ID, sender.DocumentID, err)
		return 0, err
	}
	metrics.DeltasReceived.Inc()

	msg := raw
	if form == delta.FormLegacy {
		// peers only ever see the canonical form
		if msg, err = delta.Encode(d); err != nil {
			middleware.AddSpanError(ctx, err)
			return 0, err
		}
	}

	delivered := r.Deliver(sender.DocumentID, msg, sender)
	span.SetAttributes(attribute.Int("relay.delivered", delivered))

	if r.mirror != nil {
		if err := r.mirror.Apply(sender.DocumentID, d); err != nil {
			log.Printf("⚠️  Live copy of document %s diverged: %v", sender.DocumentID, err)
		}
	}

	if r.bus != nil {
		r.enqueuePublish(ctx, sender.DocumentID, sender.ID, msg)
	}

	return delivered, nil
}

// Deliver queues msg for every member of documentID except exclude.
// A full or closed peer misses the message; nothing is retried.
func (r *Relay) Deliver(documentID string, msg []byte, exclude *Connection) int {
	delivered := 0
	for _, peer := range r.registry.Members(documentID) {
		if peer == exclude {
			continue
		}
		if err := peer.Enqueue(msg); err != nil {
			reason := metrics.ReasonQueueFull
			if errors.Is(err, ErrConnectionClosed) {
				reason = metrics.ReasonClosed
			}
			metrics.DeltasDropped.WithLabelValues(reason).Inc()
			log.Printf("⚠️  Session %s missed a delta on document %s: %v", peer.ID, documentID, err)
			continue
		}
		metrics.DeltasRelayed.Inc()
		delivered++
	}
	return delivered
}

// DeliverRemote hands a delta relayed by another instance to the local members.
// The sender lives on the other instance, so nobody here is excluded.
func (r *Relay) DeliverRemote(ctx context.Context, env Envelope) int {
	_, span := middleware.StartSpan(ctx, "Relay.DeliverRemote",
		attribute.String("document.id", env.Document),
		attribute.String("relay.instance", env.Instance),
	)
	defer span.End()

	d, _, err := delta.Parse(env.Delta)
	if err != nil {
		log.Printf("⚠️  Discarding malformed remote delta for document %s: %v", env.Document, err)
		return 0
	}

	delivered := r.Deliver(env.Document, env.Delta, nil)

	if r.mirror != nil {
		if err := r.mirror.Apply(env.Document, d); err != nil {
			log.Printf("⚠️  Live copy of document %s diverged: %v", env.Document, err)
		}
	}
	return delivered
}
