package engine

import (
	"sync"
	"time"
)

// Sizer picks the entry batch size for the next competition pass from an
// exponential moving average of observed per-entry write latency, clamped
// to [min, max]. Latency above the threshold halves the batch; latency at
// or below it grows the batch additively.
type Sizer struct {
	mu        sync.Mutex
	min, max  int
	threshold time.Duration
	ema       time.Duration
	size      int
}

// NewSizer creates a batch sizer starting at the maximum size.
func NewSizer(min, max int, threshold time.Duration) *Sizer {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return &Sizer{min: min, max: max, threshold: threshold, size: max}
}

// Next returns the batch size to use for the next pass.
func (s *Sizer) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Observe folds one pass's per-entry latency into the moving average and
// adjusts the next batch size.
func (s *Sizer) Observe(perEntry time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ema == 0 {
		s.ema = perEntry
	} else {
		// EMA with alpha = 0.3
		s.ema = (3*perEntry + 7*s.ema) / 10
	}

	if s.ema > s.threshold {
		s.size /= 2
		if s.size < s.min {
			s.size = s.min
		}
		return
	}
	s.size += 10
	if s.size > s.max {
		s.size = s.max
	}
}
