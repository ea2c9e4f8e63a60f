// Package button debounces polled digital levels into per-key edge states.
package button

import (
	"fmt"
	"sync"
)

// State is the debounced state of one key. The string values are part of
// the telemetry wire schema.
type State string

const (
	Released  State = "released"
	Pressed   State = "pressed"
	OnClick   State = "onclick"
	OnRelease State = "onrelease"
)

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	switch s {
	case Released, Pressed, OnClick, OnRelease:
		return true
	}
	return false
}

// next applies one polled level. low is the active level. Only a settled
// state produces an edge: a press that lasts a single poll goes
// OnClick -> Released without an OnRelease pulse.
func (s State) next(low bool) State {
	if low {
		if s == Released {
			return OnClick
		}
		return Pressed
	}
	if s == Pressed {
		return OnRelease
	}
	return Released
}

// LevelReader reads the current level of every requested key. It returns
// true for a key whose line is low (active).
type LevelReader interface {
	ReadLevels(keys []string) (map[string]bool, error)
}

// Debouncer owns the state map for a fixed, ordered set of keys.
type Debouncer struct {
	mu     sync.Mutex
	keys   []string
	reader LevelReader
	states map[string]State
}

// NewDebouncer returns a debouncer for keys, all starting Released.
func NewDebouncer(reader LevelReader, keys []string) (*Debouncer, error) {
	if reader == nil {
		return nil, fmt.Errorf("button: nil level reader")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("button: no keys configured")
	}
	d := &Debouncer{
		keys:   append([]string(nil), keys...),
		reader: reader,
		states: make(map[string]State, len(keys)),
	}
	for _, k := range d.keys {
		if _, dup := d.states[k]; dup {
			return nil, fmt.Errorf("button: duplicate key %q", k)
		}
		d.states[k] = Released
	}
	return d, nil
}

// Keys returns the configured key ids in order.
func (d *Debouncer) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Poll reads every key once and advances its state. The returned map is a
// snapshot the caller may keep. On a read error no state changes.
func (d *Debouncer) Poll() (map[string]State, error) {
	levels, err := d.reader.ReadLevels(d.keys)
	if err != nil {
		return nil, fmt.Errorf("button: read levels: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range d.keys {
		d.states[k] = d.states[k].next(levels[k])
	}
	return d.snapshot(), nil
}

// Snapshot returns a copy of the current states without polling.
func (d *Debouncer) Snapshot() map[string]State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

func (d *Debouncer) snapshot() map[string]State {
	out := make(map[string]State, len(d.states))
	for k, v := range d.states {
		out[k] = v
	}
	return out
}
