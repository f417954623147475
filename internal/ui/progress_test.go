package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanidx/internal/index"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestProgressTracker_Speed(t *testing.T) {
	// Given: a tracker on a fake clock
	clock := newFakeClock()
	p := newProgressTracker(clock.Now)

	// When: 10 files finish per second for two seconds
	clock.Advance(time.Second)
	p.Observe(index.IndexStatus{TotalFiles: 100, IndexedFiles: 10})
	clock.Advance(time.Second)
	p.Observe(index.IndexStatus{TotalFiles: 100, IndexedFiles: 15, FailedFiles: 5})

	// Then: the throughput is 10 files/sec
	stats := p.Stats()
	assert.InDelta(t, 10, stats.Speed.Current, 1e-9)
	assert.InDelta(t, 10, stats.Speed.Avg, 1e-9)
	assert.InDelta(t, 10, stats.Speed.Peak, 1e-9)
	assert.InDelta(t, 0.2, stats.Progress, 1e-9)
	assert.Equal(t, 2*time.Second, stats.Elapsed)
}

func TestProgressTracker_IgnoresBurstsInsideInterval(t *testing.T) {
	clock := newFakeClock()
	p := newProgressTracker(clock.Now)

	clock.Advance(100 * time.Millisecond)
	p.Observe(index.IndexStatus{TotalFiles: 10, IndexedFiles: 5})

	assert.Zero(t, p.Stats().Speed.Current)
	assert.Equal(t, 5, p.Stats().Status.IndexedFiles)
}

func TestProgressTracker_ETA(t *testing.T) {
	clock := newFakeClock()
	p := newProgressTracker(clock.Now)

	assert.Zero(t, p.Stats().ETA)

	clock.Advance(10 * time.Second)
	p.Observe(index.IndexStatus{TotalFiles: 4, IndexedFiles: 1})
	assert.Equal(t, 30*time.Second, p.Stats().ETA)

	p.Observe(index.IndexStatus{TotalFiles: 4, IndexedFiles: 4})
	assert.Zero(t, p.Stats().ETA)
}

func TestProgressTracker_Sparkline(t *testing.T) {
	clock := newFakeClock()
	p := newProgressTracker(clock.Now)

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Second)
		p.Observe(index.IndexStatus{TotalFiles: 100, IndexedFiles: i * i})
	}

	assert.Equal(t, "   ▂▅█", p.Sparkline(6))
}
