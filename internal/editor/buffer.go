package editor

import (
	"sync"

	"codecollab/internal/delta"
)

// ChangeListener is notified synchronously after every mutation, local or remote.
type ChangeListener func(delta.Delta)

// Buffer is a plain text buffer standing in for the editing widget.
// It accepts range-replacement operations and fires a change notification
// carrying the same operations, the way the widget does on every edit.
type Buffer struct {
	mu        sync.RWMutex
	text      string
	listeners []ChangeListener
}

// NewBuffer creates a buffer holding the initial document snapshot.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

// Text returns the current contents.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// OnChange registers a listener. Listeners run in registration order.
func (b *Buffer) OnChange(fn func(delta.Delta)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// ApplyEdits applies ops in order. Either all operations apply or none do;
// listeners are only notified after a successful apply, before ApplyEdits returns.
func (b *Buffer) ApplyEdits(ops []delta.Operation) error {
	d := delta.Delta{Changes: ops}

	b.mu.Lock()
	next, err := d.ApplyTo(b.text)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.text = next
	listeners := append([]ChangeListener(nil), b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(d)
	}
	return nil
}

// End returns the position after the last character.
func (b *Buffer) End() (line, col int) {
	return delta.End(b.Text())
}
