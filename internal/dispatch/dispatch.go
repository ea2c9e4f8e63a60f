// Package dispatch turns received telemetry frames into pointer actions.
package dispatch

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/button"
	"github.com/relabs-tech/inertial_mouse/internal/tap"
	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

// Pointer injects pointer and keyboard input on the host.
type Pointer interface {
	MoveTo(x, y int) error
	Click(x, y int) error
	DoubleClick(x, y int) error
	RightClick(x, y int) error
	PressKey(key string) error
}

// Engagement is the process-wide control-mode toggle.
type Engagement struct {
	on atomic.Bool
}

// Toggle flips the mode and returns the new value.
func (e *Engagement) Toggle() bool {
	for {
		old := e.on.Load()
		if e.on.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (e *Engagement) Engaged() bool { return e.on.Load() }

func (e *Engagement) Set(v bool) { e.on.Store(v) }

// Gate is the local pause switch. It is consulted only when a pointer
// action is about to be issued.
type Gate struct {
	paused atomic.Bool
}

func (g *Gate) Pause()       { g.paused.Store(true) }
func (g *Gate) Resume()      { g.paused.Store(false) }
func (g *Gate) Paused() bool { return g.paused.Load() }

// Screen maps attitude angles onto pixel coordinates.
type Screen struct {
	Width, Height int
	Margin        int
	RangeDeg      float64 // ±RangeDeg spans the full screen on each axis
}

// Map converts roll to x and yaw to y. Angles outside the range and
// coordinates inside the margin are clamped.
func (s Screen) Map(rollDeg, yawDeg float64) (x, y int) {
	return s.axis(rollDeg, s.Width), s.axis(yawDeg, s.Height)
}

func (s Screen) axis(deg float64, span int) int {
	frac := (deg + s.RangeDeg) / (2 * s.RangeDeg)
	v := int(math.Round(frac * float64(span)))
	return max(s.Margin, min(span-s.Margin, v))
}

// Center returns the middle of the screen.
func (s Screen) Center() (x, y int) { return s.Width / 2, s.Height / 2 }

// Config names the buttons with a fixed meaning.
type Config struct {
	Screen       Screen
	ToggleButton string // its OnClick flips engagement
	HotkeyButton string // its OnClick presses Hotkey while engaged
	Hotkey       string
}

// Dispatcher applies frames in arrival order. Any field of a frame may be
// absent.
type Dispatcher struct {
	cfg     Config
	pointer Pointer
	engaged *Engagement
	gate    *Gate

	mu   sync.Mutex
	x, y int
}

// New returns a dispatcher. Clicks before the first attitude land on the
// screen center.
func New(cfg Config, pointer Pointer, engaged *Engagement, gate *Gate) *Dispatcher {
	d := &Dispatcher{cfg: cfg, pointer: pointer, engaged: engaged, gate: gate}
	d.x, d.y = cfg.Screen.Center()
	return d
}

// Position returns the last resolved pointer coordinates.
func (d *Dispatcher) Position() (x, y int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y
}

// Dispatch consumes one frame. Errors from the pointer are collected and
// returned; they never stop the remaining actions of the frame.
func (d *Dispatcher) Dispatch(f telemetry.Frame) error {
	if f.Buttons[d.cfg.ToggleButton] == button.OnClick {
		if d.engaged.Toggle() {
			log.Printf("dispatch: entered control mode")
		} else {
			log.Printf("dispatch: exited control mode")
		}
	}
	if !d.engaged.Engaged() {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	act := func(what string, fn func() error) {
		if d.gate.Paused() {
			log.Debugf("dispatch: paused, skipping %s", what)
			return
		}
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("dispatch: %s: %w", what, err))
		}
	}

	if d.cfg.HotkeyButton != "" && f.Buttons[d.cfg.HotkeyButton] == button.OnClick {
		act("press "+d.cfg.Hotkey, func() error { return d.pointer.PressKey(d.cfg.Hotkey) })
	}

	if f.Attitude != nil {
		d.x, d.y = d.cfg.Screen.Map(f.Attitude[0], f.Attitude[2])
		x, y := d.x, d.y
		act("move", func() error { return d.pointer.MoveTo(x, y) })
		log.Debugf("dispatch: pointer at %d, %d", x, y)
	}

	x, y := d.x, d.y
	if ev := f.LeftEvent; ev != nil {
		switch ev.Kind {
		case tap.Single:
			act("click", func() error { return d.pointer.Click(x, y) })
		case tap.Double:
			act("double click", func() error { return d.pointer.DoubleClick(x, y) })
		}
		log.Printf("dispatch: left %s tap at %d, %d", ev.Kind, x, y)
	}
	if f.RightEvent != nil {
		act("right click", func() error { return d.pointer.RightClick(x, y) })
		log.Printf("dispatch: right tap at %d, %d", x, y)
	}

	return errors.Join(errs...)
}
