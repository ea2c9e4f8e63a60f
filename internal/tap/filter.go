package tap

import "math"

// biquad is a second-order IIR section in transposed direct form II with
// coefficients normalised so that a0 == 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

// butterworthQ is the quality factor of a 2nd-order Butterworth section.
var butterworthQ = 1 / math.Sqrt2

func newLowPass(cutoff, sampleRate float64) biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosW, alpha := math.Cos(w0), math.Sin(w0)/(2*butterworthQ)
	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosW) / 2 / a0,
		b1: (1 - cosW) / a0,
		b2: (1 - cosW) / 2 / a0,
		a1: -2 * cosW / a0,
		a2: (1 - alpha) / a0,
	}
}

func newHighPass(cutoff, sampleRate float64) biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosW, alpha := math.Cos(w0), math.Sin(w0)/(2*butterworthQ)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosW) / 2 / a0,
		b1: -(1 + cosW) / a0,
		b2: (1 + cosW) / 2 / a0,
		a1: -2 * cosW / a0,
		a2: (1 - alpha) / a0,
	}
}

// settle loads the state the section would hold after an infinitely long
// constant input u, so a signal starting at u produces no edge transient.
func (s *biquad) settle(u float64) {
	gain := (s.b0 + s.b1 + s.b2) / (1 + s.a1 + s.a2)
	y := gain * u
	s.z2 = s.b2*u - s.a2*y
	s.z1 = s.b1*u - s.a1*y + s.z2
}

func (s *biquad) step(x float64) float64 {
	y := s.b0*x + s.z1
	s.z1 = s.b1*x - s.a1*y + s.z2
	s.z2 = s.b2*x - s.a2*y
	return y
}

// bandPass is a 4th-order band-pass built from a 2nd-order Butterworth
// high-pass at the low cut followed by a 2nd-order Butterworth low-pass at
// the high cut.
type bandPass struct {
	stages [2]biquad
	ext    []float64
}

func newBandPass(lowCut, highCut, sampleRate float64, maxLen int) *bandPass {
	return &bandPass{
		stages: [2]biquad{newHighPass(lowCut, sampleRate), newLowPass(highCut, sampleRate)},
		ext:    make([]float64, maxLen+2*padLength(maxLen)),
	}
}

// maxPad is 3*(order+1) for the 4th-order cascade.
const maxPad = 15

// padLength is the odd-extension length for a signal of n samples, capped
// so the reflection stays inside the signal.
func padLength(n int) int {
	pad := maxPad
	if pad > n-1 {
		pad = n - 1
	}
	if pad < 0 {
		pad = 0
	}
	return pad
}

// filtfilt applies the band-pass forward then backward over x for zero
// phase, writing the result into dst (len(dst) >= len(x)).
func (f *bandPass) filtfilt(dst, x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return dst[:0]
	}
	pad := padLength(n)
	ext := f.ext[:n+2*pad]

	// odd extension around both end points
	for i := 0; i < pad; i++ {
		ext[i] = 2*x[0] - x[pad-i]
		ext[pad+n+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[pad:], x)

	f.run(ext)
	reverse(ext)
	f.run(ext)
	reverse(ext)

	return dst[:copy(dst, ext[pad:pad+n])]
}

func (f *bandPass) run(x []float64) {
	for i := range f.stages {
		s := &f.stages[i]
		s.settle(x[0])
		for j, v := range x {
			x[j] = s.step(v)
		}
	}
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
