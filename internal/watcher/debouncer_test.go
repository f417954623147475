package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records flushed batches.
type collector struct {
	mu      sync.Mutex
	batches [][]FileEvent
	ch      chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 16)}
}

func (c *collector) flush(events []FileEvent) {
	c.mu.Lock()
	c.batches = append(c.batches, events)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T) []FileEvent {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced events")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[len(c.batches)-1]
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func event(uri string, op Operation) FileEvent {
	return FileEvent{URI: uri, Operation: op, Timestamp: time.Now()}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with short window
	c := newCollector()
	d := NewDebouncer(20*time.Millisecond, c.flush)
	defer d.Stop()

	// When: a single event is added
	d.Add(event("test.go", OpCreate))

	// Then: the event passes through after the debounce window
	events := c.wait(t)
	require.Len(t, events, 1)
	assert.Equal(t, "test.go", events[0].URI)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_MultipleEventsForSameFile_Coalesces(t *testing.T) {
	// Given: a debouncer with short window
	c := newCollector()
	d := NewDebouncer(50*time.Millisecond, c.flush)
	defer d.Stop()

	// When: multiple events for the same file are added rapidly
	for i := 0; i < 5; i++ {
		d.Add(event("test.go", OpModify))
		time.Sleep(5 * time.Millisecond)
	}

	// Then: only one event comes out, in one batch
	events := c.wait(t)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Operation)
	assert.Equal(t, 1, c.count())
}

func TestDebouncer_CoalescingRules(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation
	}{
		{"create then modify stays create", []Operation{OpCreate, OpModify}, []Operation{OpCreate}},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"create then delete is nothing", []Operation{OpCreate, OpDelete}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer with a long window, flushed by hand
			var got []FileEvent
			d := NewDebouncer(time.Hour, func(events []FileEvent) { got = events })
			defer d.Stop()

			// When: the operations arrive for one path
			for _, op := range tt.ops {
				d.Add(event("a.go", op))
			}
			d.Flush()

			// Then: the merged operation is emitted, or nothing
			var ops []Operation
			for _, e := range got {
				ops = append(ops, e.Operation)
			}
			assert.Equal(t, tt.want, ops)
		})
	}
}

func TestDebouncer_DifferentFiles_SortedBatch(t *testing.T) {
	var got []FileEvent
	d := NewDebouncer(time.Hour, func(events []FileEvent) { got = events })
	defer d.Stop()

	d.Add(event("b.go", OpModify))
	d.Add(event("a.go", OpCreate))
	assert.Equal(t, 2, d.Pending())
	d.Flush()

	require.Len(t, got, 2)
	assert.Equal(t, "a.go", got[0].URI)
	assert.Equal(t, "b.go", got[1].URI)
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	c := newCollector()
	d := NewDebouncer(20*time.Millisecond, c.flush)

	d.Add(event("a.go", OpModify))
	d.Stop()
	d.Stop()
	d.Add(event("b.go", OpModify))
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 0, c.count())
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "IGNORE_CHANGE", OpIgnoreChange.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}
