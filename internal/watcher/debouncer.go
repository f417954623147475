package watcher

import (
	"sort"
	"sync"
	"time"
)

// DefaultDebounce is the quiet window used when none is given.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces rapid file events to prevent index thrashing.
// Events for the same path within the debounce window are merged according
// to these rules:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
//
// The flush callback runs on its own goroutine once the window passes with
// no new events. Batches are sorted by URI.
type Debouncer struct {
	window  time.Duration
	onFlush func([]FileEvent)

	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer that hands each coalesced batch to onFlush.
func NewDebouncer(window time.Duration, onFlush func([]FileEvent)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		window:  window,
		onFlush: onFlush,
		pending: make(map[string]*pendingEvent),
	}
}

// Add queues an event and restarts the quiet window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.URI]; ok {
		merged := coalesce(existing, event)
		if merged == nil {
			delete(d.pending, event.URI)
		} else {
			existing.event = *merged
		}
	} else {
		d.pending[event.URI] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.Flush)
}

// coalesce merges two events for one path. It returns nil when they cancel
// each other out.
func coalesce(existing *pendingEvent, next FileEvent) *FileEvent {
	switch existing.firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return &existing.event
		case OpDelete:
			return nil
		}
	case OpDelete:
		if next.Operation == OpCreate {
			replaced := next
			replaced.Operation = OpModify
			return &replaced
		}
	}
	return &next
}

// Pending returns the number of paths waiting for the window to pass.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush emits everything pending now, without waiting for the window.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)
	d.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].URI < events[j].URI })
	d.onFlush(events)
}

// Stop drops pending events and disables the debouncer.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]*pendingEvent)
}
