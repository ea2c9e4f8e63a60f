package tap

// ring is a fixed-capacity circular buffer of magnitude samples. Pushing
// into a full ring drops the oldest sample. Not safe for concurrent use;
// each detector owns its ring.
type ring struct {
	data []float64
	// next is the slot the next push writes to.
	next int
	// count is the number of stored samples, at most len(data).
	count int
}

func newRing(capacity int) *ring {
	return &ring{data: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.data[r.next] = v
	r.next = (r.next + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

func (r *ring) full() bool { return r.count == len(r.data) }

// copyTo writes the stored samples oldest first into dst and returns the
// filled prefix.
func (r *ring) copyTo(dst []float64) []float64 {
	start := (r.next - r.count + len(r.data)) % len(r.data)
	n := copy(dst, r.data[start:])
	if n > r.count {
		n = r.count
	} else if n < r.count {
		n += copy(dst[n:r.count], r.data[:r.count-n])
	}
	return dst[:n]
}
