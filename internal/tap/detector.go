// Package tap turns a stream of acceleration vectors from one sensor
// channel into single and double tap events.
//
// Each evaluated window is band-passed with zero phase, tapered with a
// Hamming window and transformed with a real FFT. A window is a tap
// candidate when its in-band spectral energy and its peak amplitude both
// clear their thresholds and the refractory period since the previous tap
// has elapsed. Thresholds are empirically tuned and carried as
// configuration.
package tap

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/relabs-tech/inertial_mouse/internal/imu"
)

// Kind distinguishes single from double taps.
type Kind string

const (
	Single Kind = "single"
	Double Kind = "double"
)

// Event is a detected tap. Index is the sample index at which the window
// that produced it ended.
type Event struct {
	Kind  Kind
	Index uint64
}

// Config holds the detector parameters.
type Config struct {
	SampleRate      float64 // Hz
	Window          int     // W, samples per evaluated window
	Overlap         float64 // fraction of W shared by consecutive windows
	LowCut          float64 // band-pass lower edge, Hz
	HighCut         float64 // band-pass upper edge, Hz
	EnergyBandLow   float64 // Hz
	EnergyBandHigh  float64 // Hz
	EnergyThreshold float64 // multiple of the mean spectral magnitude
	PeakThreshold   float64 // minimum peak of the tapered segment
	DoubleTapWindow int     // max samples between the taps of a double
}

// Step returns the number of samples between evaluations.
func (c Config) Step() int {
	return int(float64(c.Window) * (1 - c.Overlap))
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("tap: sample rate must be positive, got %g", c.SampleRate)
	}
	if c.Window < 4 {
		return fmt.Errorf("tap: window must be at least 4 samples, got %d", c.Window)
	}
	if c.Overlap < 0 || c.Overlap >= 1 {
		return fmt.Errorf("tap: overlap must be in [0, 1), got %g", c.Overlap)
	}
	if c.Step() < 1 {
		return fmt.Errorf("tap: window %d with overlap %g leaves no step", c.Window, c.Overlap)
	}
	if c.LowCut <= 0 || c.HighCut <= c.LowCut || c.HighCut >= c.SampleRate/2 {
		return fmt.Errorf("tap: band [%g, %g] Hz invalid for sample rate %g Hz", c.LowCut, c.HighCut, c.SampleRate)
	}
	if c.DoubleTapWindow < 0 {
		return fmt.Errorf("tap: double tap window must not be negative")
	}
	return nil
}

// Detector is the per-channel streaming tap classifier. It never blocks,
// performs no I/O and is not safe for concurrent use; each physical channel
// owns exactly one.
type Detector struct {
	cfg  Config
	step int

	buf      *ring
	filter   *bandPass
	fft      *fourier.FFT
	segment  []float64
	filtered []float64
	coeffs   []complex128
	bandLo   int
	bandHi   int

	// index of the next sample to arrive
	next uint64

	lastAccepted uint64
	haveAccepted bool
	pending      uint64
	havePending  bool
}

// New returns a detector for one channel.
func New(cfg Config) (*Detector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:      cfg,
		step:     cfg.Step(),
		buf:      newRing(cfg.Window),
		filter:   newBandPass(cfg.LowCut, cfg.HighCut, cfg.SampleRate, cfg.Window),
		fft:      fourier.NewFFT(cfg.Window),
		segment:  make([]float64, cfg.Window),
		filtered: make([]float64, cfg.Window),
		coeffs:   make([]complex128, cfg.Window/2+1),
	}

	// spectral bins covered by the energy band
	d.bandLo, d.bandHi = len(d.coeffs), -1
	for k := range d.coeffs {
		f := d.fft.Freq(k) * cfg.SampleRate
		if f >= cfg.EnergyBandLow && f <= cfg.EnergyBandHigh {
			d.bandLo = min(d.bandLo, k)
			d.bandHi = max(d.bandHi, k)
		}
	}
	return d, nil
}

// Refractory is the minimum sample gap enforced after an accepted tap.
func (d *Detector) Refractory() uint64 { return uint64(d.cfg.Window) }

// Push feeds one acceleration vector. It reports at most one event, and
// only when the sample completes an evaluated window.
func (d *Detector) Push(accel imu.Vec3) (Event, bool) {
	index := d.next
	d.next++
	d.buf.push(accel.Norm())

	w := uint64(d.cfg.Window)
	if !d.buf.full() || (index+1-w)%uint64(d.step) != 0 {
		return Event{}, false
	}

	if d.haveAccepted && index-d.lastAccepted <= d.Refractory() {
		return Event{}, false
	}
	if !d.candidate() {
		return Event{}, false
	}

	ev := Event{Kind: Single, Index: index}
	if d.havePending && index-d.pending <= uint64(d.cfg.DoubleTapWindow) {
		ev.Kind = Double
		d.havePending = false
	} else {
		d.pending = index
		d.havePending = true
	}
	d.lastAccepted = index
	d.haveAccepted = true
	return ev, true
}

// candidate evaluates the current window: band-pass, Hamming taper, real
// FFT, then the energy and peak gates.
func (d *Detector) candidate() bool {
	seg := d.buf.copyTo(d.segment)
	x := d.filter.filtfilt(d.filtered, seg)
	window.Hamming(x)

	peak := 0.0
	for _, v := range x {
		peak = math.Max(peak, math.Abs(v))
	}
	if !(peak > d.cfg.PeakThreshold) {
		return false
	}

	coeffs := d.fft.Coefficients(d.coeffs, x)
	var sum, energy float64
	for k, c := range coeffs {
		m := cmplx.Abs(c)
		sum += m
		if k >= d.bandLo && k <= d.bandHi {
			energy += m * m
		}
	}
	mean := sum / float64(len(coeffs))
	return energy > d.cfg.EnergyThreshold*mean
}
