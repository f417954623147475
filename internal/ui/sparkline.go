package ui

import "strings"

// sparkChars are eight bar heights, lowest first.
var sparkChars = []rune("▁▂▃▄▅▆▇█")

// Sparkline keeps the last N throughput samples and draws them as bars
// scaled to the largest sample in view.
type Sparkline struct {
	samples []float64
	next    int
	filled  int
}

// NewSparkline creates a sparkline holding size samples (default 60).
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{samples: make([]float64, size)}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.next] = max(v, 0)
	s.next = (s.next + 1) % len(s.samples)
	if s.filled < len(s.samples) {
		s.filled++
	}
}

// Len returns the number of samples held.
func (s *Sparkline) Len() int { return s.filled }

// Clear drops every sample.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.next, s.filled = 0, 0
}

// Render draws the most recent width samples, left-padded with spaces to
// exactly width runes.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	recent := s.recent(min(width, s.filled))

	peak := 0.0
	for _, v := range recent {
		peak = max(peak, v)
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-len(recent)))
	for _, v := range recent {
		i := 0
		if peak > 0 {
			i = int(v / peak * float64(len(sparkChars)-1))
		}
		b.WriteRune(sparkChars[i])
	}
	return b.String()
}

// recent returns the last n samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := (s.next - n + i + len(s.samples)) % len(s.samples)
		out[i] = s.samples[idx]
	}
	return out
}
