package collaboration

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"codecollab/internal/delta"
	"codecollab/internal/models"
	"codecollab/internal/services"
)

// DocumentLoader reads the persisted snapshot of a document.
type DocumentLoader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

// SnapshotQueue accepts content to persist.
type SnapshotQueue interface {
	Submit(job services.SnapshotJob) error
	SubmitWait(ctx context.Context, job services.SnapshotJob) error
}

// Mirror keeps the live content of every open document by applying each
// relayed delta in arrival order, and saves it through the snapshot writer
// at most once per interval. The saved content is a convenience for late
// joiners and restarts; it is not kept in lockstep with any client buffer.
type Mirror struct {
	loader   DocumentLoader
	queue    SnapshotQueue
	interval time.Duration

	mu   sync.Mutex // guards docs and every mirrorDoc.refs
	docs map[string]*mirrorDoc
}

type mirrorDoc struct {
	refs int

	mu       sync.Mutex // guards the fields below
	loaded   bool
	content  string
	dirty    bool
	pending  int // saves queued but not yet written
	lastSave time.Time
}

func NewMirror(loader DocumentLoader, queue SnapshotQueue, interval time.Duration) *Mirror {
	return &Mirror{
		loader:   loader,
		queue:    queue,
		interval: interval,
		docs:     make(map[string]*mirrorDoc),
	}
}

// Acquire pins documentID's live copy, loading it on first use.
// Every Acquire must be matched by a Release, even when it returns an error.
func (m *Mirror) Acquire(ctx context.Context, documentID string) error {
	m.mu.Lock()
	d, ok := m.docs[documentID]
	if !ok {
		d = &mirrorDoc{}
		m.docs[documentID] = d
	}
	d.refs++
	m.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}

	doc, err := m.loader.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load live copy of %s: %w", documentID, err)
	}
	d.content = doc.Content
	d.loaded = true
	d.lastSave = time.Now()
	return nil
}

// Release unpins documentID. When the last holder leaves, pending changes are queued for saving.
func (m *Mirror) Release(documentID string) {
	m.mu.Lock()
	d, ok := m.docs[documentID]
	if !ok {
		m.mu.Unlock()
		return
	}
	d.refs--
	last := d.refs == 0
	m.mu.Unlock()

	if last {
		d.mu.Lock()
		if d.dirty {
			m.saveLocked(documentID, d)
		}
		d.mu.Unlock()
	}
}

// Apply applies d to the live copy of documentID. Unknown documents are ignored.
func (m *Mirror) Apply(documentID string, dl delta.Delta) error {
	d := m.get(documentID)
	if d == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil
	}

	next, err := dl.ApplyTo(d.content)
	if err != nil {
		return err
	}
	d.content = next
	d.dirty = true

	if time.Since(d.lastSave) >= m.interval {
		m.saveLocked(documentID, d)
	}
	return nil
}

// Snapshot returns the live content of documentID, if it is loaded.
func (m *Mirror) Snapshot(documentID string) (string, bool) {
	d := m.get(documentID)
	if d == nil {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content, d.loaded
}

// Sweep saves changes older than the interval and forgets documents nobody
// holds once their content is safely written.
func (m *Mirror) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, d := range m.docs {
		d.mu.Lock()
		switch {
		case d.refs == 0 && !d.dirty && d.pending == 0:
			delete(m.docs, id)
		case d.dirty && time.Since(d.lastSave) >= m.interval:
			m.saveLocked(id, d)
		}
		d.mu.Unlock()
	}
}

// FlushAll queues every unsaved document, waiting for queue room until ctx is done.
func (m *Mirror) FlushAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.docs))
	docs := make([]*mirrorDoc, 0, len(m.docs))
	for id, d := range m.docs {
		ids = append(ids, id)
		docs = append(docs, d)
	}
	m.mu.Unlock()

	for i, d := range docs {
		d.mu.Lock()
		if !d.dirty {
			d.mu.Unlock()
			continue
		}
		job := m.jobLocked(ids[i], d)
		d.mu.Unlock()

		// Waiting happens outside d.mu: the worker's Done callback needs it.
		if err := m.queue.SubmitWait(ctx, job); err != nil {
			log.Printf("⚠️  Failed to flush document %s: %v", ids[i], err)
			d.mu.Lock()
			d.pending--
			d.dirty = true
			d.mu.Unlock()
		}
	}
}

func (m *Mirror) get(documentID string) *mirrorDoc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[documentID]
}

// jobLocked marks d clean and returns the job saving its current content.
func (m *Mirror) jobLocked(documentID string, d *mirrorDoc) services.SnapshotJob {
	d.dirty = false
	d.pending++
	d.lastSave = time.Now()
	return services.SnapshotJob{
		DocumentID: documentID,
		Content:    d.content,
		Done: func(err error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.pending--
			if err != nil {
				d.dirty = true
			}
		},
	}
}

// saveLocked queues d without blocking; on a full queue d stays dirty for the next sweep.
func (m *Mirror) saveLocked(documentID string, d *mirrorDoc) {
	job := m.jobLocked(documentID, d)
	if err := m.queue.Submit(job); err != nil {
		log.Printf("⚠️  Deferring save of document %s: %v", documentID, err)
		d.pending--
		d.dirty = true
	}
}
