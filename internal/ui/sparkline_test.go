package ui

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSparkline_Empty(t *testing.T) {
	s := NewSparkline(5)

	assert.Equal(t, "     ", s.Render(0))
	assert.Zero(t, s.Len())
}

func TestSparkline_ScalesToPeak(t *testing.T) {
	s := NewSparkline(4)
	for _, v := range []float64{0, 7, 14} {
		s.Add(v)
	}

	assert.Equal(t, " ▁▄█", s.Render(4))
}

func TestSparkline_EvictsOldest(t *testing.T) {
	s := NewSparkline(3)
	for _, v := range []float64{100, 1, 1, 1} {
		s.Add(v)
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "███", s.Render(3))
}

func TestSparkline_RenderNarrowerThanBuffer(t *testing.T) {
	s := NewSparkline(10)
	for i := range 10 {
		s.Add(float64(i))
	}

	got := s.Render(3)

	assert.Equal(t, 3, utf8.RuneCountInString(got))
	assert.Equal(t, "▆▇█", got)
}

func TestSparkline_NegativeClampedAndClear(t *testing.T) {
	s := NewSparkline(2)
	s.Add(-5)
	s.Add(0)
	assert.Equal(t, "▁▁", s.Render(2))

	s.Clear()
	assert.Equal(t, "  ", s.Render(2))
}
