package telemetry

import (
	"math"
	"sync"
	"time"
)

// Stamper hands out frame timestamps in seconds. Each value is strictly
// greater than the previous one even if the wall clock stalls or steps
// backwards.
type Stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last float64
}

// NewStamper returns a stamper reading now; nil uses time.Now.
func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Next returns the timestamp for the next frame.
func (s *Stamper) Next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := float64(s.now().UnixNano()) / 1e9
	if ts <= s.last {
		ts = math.Nextafter(s.last, math.Inf(1))
	}
	s.last = ts
	return ts
}
