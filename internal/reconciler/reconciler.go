package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"codecollab/internal/delta"
)

/*
LEARNING: ECHO SUPPRESSION AS A TWO-STATE MACHINE

The editor fires the same synchronous change notification for every
mutation, whether the local user typed or a peer's delta was applied.
Without a guard, applying a remote delta would be re-sent to the relay,
which would fan it out again, forever.

	Idle ──inbound delta──▶ ApplyingRemote ──(deferred, end of turn)──▶ Idle

All events (inbound messages, local edits) are processed one at a time by
Run. A turn is one event plus every task it deferred, so the reset back to
Idle always happens after the notification fired by the apply was seen.
*/

// State of the reconciler.
type State int

const (
	Idle State = iota
	ApplyingRemote
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ApplyingRemote:
		return "ApplyingRemote"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrStopped is returned when an event is offered after Run has returned.
var ErrStopped = errors.New("reconciler stopped")

// Editor is what the reconciler needs from the text widget.
type Editor interface {
	ApplyEdits(ops []delta.Operation) error
	OnChange(fn func(delta.Delta))
}

// Transport is the client's connection to the relay.
type Transport interface {
	// Ready reports whether the channel is open and accepting sends.
	Ready() bool
	Send(msg []byte) error
}

// Stats counts what happened to changes seen by the reconciler.
type Stats struct {
	Applied    int // remote deltas applied to the buffer
	Rejected   int // inbound messages that were not deltas or did not apply
	Suppressed int // change notifications recognised as echoes
	Sent       int // local deltas handed to the transport
	Unsent     int // local deltas dropped because the transport was not ready or failed
}

type event func(r *Reconciler)

// Reconciler applies remote deltas to the local buffer and turns local edits into outbound deltas.
type Reconciler struct {
	editor    Editor
	transport Transport

	state    State
	deferred []func()
	stats    Stats

	events  chan event
	stopped chan struct{}
}

// New wires the reconciler to the editor's change notifications.
func New(editor Editor, transport Transport) *Reconciler {
	r := &Reconciler{
		editor:    editor,
		transport: transport,
		events:    make(chan event, 64),
		stopped:   make(chan struct{}),
	}
	editor.OnChange(r.handleChange)
	return r
}

// Run processes events until ctx is cancelled. Only one Run may be active.
func (r *Reconciler) Run(ctx context.Context) error {
	defer close(r.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			r.dispatch(ev)
		}
	}
}

// Receive queues an inbound transport message.
func (r *Reconciler) Receive(msg []byte) error {
	return r.post(func(r *Reconciler) { r.applyRemote(msg) })
}

// Edit queues a local user edit. The edit is applied to the buffer and,
// if the reconciler is Idle when the notification fires, sent to peers.
func (r *Reconciler) Edit(ops ...delta.Operation) error {
	return r.post(func(r *Reconciler) {
		if err := r.editor.ApplyEdits(ops); err != nil {
			log.Printf("⚠️  Local edit rejected: %v", err)
		}
	})
}

// Do runs fn inside the event loop, serialized with every other event.
func (r *Reconciler) Do(fn func()) error {
	return r.post(func(*Reconciler) { fn() })
}

func (r *Reconciler) post(ev event) error {
	select {
	case <-r.stopped:
		return ErrStopped
	default:
	}
	select {
	case r.events <- ev:
		return nil
	case <-r.stopped:
		return ErrStopped
	}
}

// dispatch processes one event to completion, including the tasks it deferred.
func (r *Reconciler) dispatch(ev event) {
	ev(r)
	for len(r.deferred) > 0 {
		task := r.deferred[0]
		r.deferred = r.deferred[1:]
		task()
	}
}

func (r *Reconciler) deferTask(task func()) {
	r.deferred = append(r.deferred, task)
}

func (r *Reconciler) applyRemote(msg []byte) {
	d, _, err := delta.Parse(msg)
	if err != nil {
		r.stats.Rejected++
		log.Printf("⚠️  Ignoring inbound message: %v", err)
		return
	}

	r.state = ApplyingRemote
	r.deferTask(func() { r.state = Idle })

	if err := r.editor.ApplyEdits(d.Changes); err != nil {
		r.stats.Rejected++
		log.Printf("⚠️  Remote delta does not apply to local buffer: %v", err)
		return
	}
	r.stats.Applied++
}

// handleChange is the editor's change listener.
func (r *Reconciler) handleChange(d delta.Delta) {
	if r.state == ApplyingRemote {
		r.stats.Suppressed++
		return
	}

	if !r.transport.Ready() {
		r.stats.Unsent++
		return
	}

	msg, err := delta.Encode(d)
	if err != nil {
		r.stats.Unsent++
		log.Printf("⚠️  %v", err)
		return
	}
	if err := r.transport.Send(msg); err != nil {
		r.stats.Unsent++
		log.Printf("⚠️  Failed to send delta: %v", err)
		return
	}
	r.stats.Sent++
}

// State returns the current state. Call from inside the loop (Do) when Run is active.
func (r *Reconciler) State() State {
	return r.state
}

// Stats returns the counters. Call from inside the loop (Do) when Run is active.
func (r *Reconciler) Stats() Stats {
	return r.stats
}
