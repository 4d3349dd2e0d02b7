package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSizerStartsAtMax(t *testing.T) {
	s := NewSizer(10, 100, 25*time.Millisecond)
	assert.Equal(t, 100, s.Next())
}

func TestSizerShrinksOnSlowEntries(t *testing.T) {
	s := NewSizer(10, 100, 25*time.Millisecond)

	s.Observe(200 * time.Millisecond)
	assert.Equal(t, 50, s.Next())

	s.Observe(200 * time.Millisecond)
	assert.Equal(t, 25, s.Next())
}

func TestSizerClampsAtMin(t *testing.T) {
	s := NewSizer(10, 100, 25*time.Millisecond)
	for i := 0; i < 10; i++ {
		s.Observe(time.Second)
	}
	assert.Equal(t, 10, s.Next())
}

func TestSizerGrowsWhenFast(t *testing.T) {
	s := NewSizer(10, 100, 25*time.Millisecond)

	// Shrink first, then recover.
	s.Observe(500 * time.Millisecond)
	s.Observe(500 * time.Millisecond)
	shrunk := s.Next()
	assert.Less(t, shrunk, 100)

	// Fast passes pull the EMA back under the threshold and grow the batch.
	for i := 0; i < 50; i++ {
		s.Observe(time.Millisecond)
	}
	assert.Equal(t, 100, s.Next(), "fast entries must grow the batch back to max")
}

func TestSizerEMASmoothsSpikes(t *testing.T) {
	s := NewSizer(10, 100, 25*time.Millisecond)

	// Settle the EMA well under the threshold.
	for i := 0; i < 20; i++ {
		s.Observe(2 * time.Millisecond)
	}
	before := s.Next()

	// One spike must not halve the batch: the moving average absorbs it.
	s.Observe(30 * time.Millisecond)
	assert.Equal(t, before, s.Next())
}
