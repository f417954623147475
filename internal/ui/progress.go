package ui

import (
	"sync"
	"time"

	"github.com/Aman-CERP/amanidx/internal/index"
)

// speedInterval is the minimum gap between throughput samples.
const speedInterval = 500 * time.Millisecond

// etaSmoothing is the weight of a fresh ETA against the previous one.
const etaSmoothing = 0.3

// SpeedStats is file throughput in files per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot for display.
type ProgressStats struct {
	Status   index.IndexStatus
	Progress float64 // 0.0 to 1.0
	ETA      time.Duration
	Elapsed  time.Duration
	Speed    SpeedStats
}

// ProgressTracker turns the stream of status copies into throughput, ETA
// and a sparkline. It is safe for concurrent use.
type ProgressTracker struct {
	mu    sync.Mutex
	now   func() time.Time
	start time.Time
	last  index.IndexStatus

	sampleAt   time.Time
	sampleDone int
	speed      SpeedStats
	samples    int
	eta        time.Duration
	sparkline  *Sparkline
}

// NewProgressTracker creates a tracker starting now.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{now: now, start: t, sampleAt: t, sparkline: NewSparkline(60)}
}

// Observe records a status copy.
func (p *ProgressTracker) Observe(st index.IndexStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = st
	now := p.now()
	elapsed := now.Sub(p.sampleAt)
	if elapsed < speedInterval {
		return
	}

	done := st.IndexedFiles + st.FailedFiles
	if delta := done - p.sampleDone; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed.Current = speed
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		p.speed.Peak = max(p.speed.Peak, speed)
		p.sparkline.Add(speed)
	}
	p.sampleDone = done
	p.sampleAt = now
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Status:   p.last,
		Progress: p.last.ProgressPct() / 100,
		ETA:      p.calculateETA(),
		Elapsed:  p.now().Sub(p.start),
		Speed:    p.speed,
	}
}

// Sparkline renders the throughput history.
func (p *ProgressTracker) Sparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}

// calculateETA extrapolates from elapsed time and smooths the result so
// uneven file sizes do not make it jump. Caller holds the lock.
func (p *ProgressTracker) calculateETA() time.Duration {
	progress := p.last.ProgressPct() / 100
	if progress <= 0 || progress >= 1 {
		return 0
	}
	elapsed := p.now().Sub(p.start)
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}
	if p.eta == 0 {
		p.eta = raw
		return raw
	}
	p.eta = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.eta))
	return p.eta
}
