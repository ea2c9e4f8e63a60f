package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/inertial_mouse/internal/button"
	"github.com/relabs-tech/inertial_mouse/internal/dispatch"
	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
	"github.com/relabs-tech/inertial_mouse/internal/transport"
)

type result struct {
	f   telemetry.Frame
	ok  bool
	err error
}

// scriptedReceiver replays results, then blocks until closed.
type scriptedReceiver struct {
	results   []result
	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedReceiver(results ...result) *scriptedReceiver {
	return &scriptedReceiver{results: results, closed: make(chan struct{})}
}

func (r *scriptedReceiver) Receive() (telemetry.Frame, bool, error) {
	if len(r.results) > 0 {
		next := r.results[0]
		r.results = r.results[1:]
		return next.f, next.ok, next.err
	}
	<-r.closed
	return telemetry.Frame{}, false, transport.ErrConnectionClosed
}

func (r *scriptedReceiver) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

func newTestDispatcher() (*dispatch.Dispatcher, *dispatch.Engagement) {
	engaged := &dispatch.Engagement{}
	d := dispatch.New(dispatch.Config{
		Screen:       dispatch.Screen{Width: 1920, Height: 1080, Margin: 5, RangeDeg: 60},
		ToggleButton: "22",
	}, dispatch.LogPointer{}, engaged, &dispatch.Gate{})
	return d, engaged
}

func TestReceiveLoopSkipsMalformedAndStopsOnClose(t *testing.T) {
	toggle := telemetry.Frame{Timestamp: 1, Buttons: map[string]button.State{"22": button.OnClick}}
	rx := newScriptedReceiver(
		result{ok: false},
		result{err: fmt.Errorf("%w: bad payload", transport.ErrMalformedFrame)},
		result{f: toggle, ok: true},
		result{f: telemetry.Frame{Timestamp: 2}, ok: true},
		result{err: transport.ErrConnectionClosed},
	)
	d, engaged := newTestDispatcher()

	var seen []float64
	err := receiveLoop(context.Background(), rx, d, func(f telemetry.Frame) { seen = append(seen, f.Timestamp) })
	if !errors.Is(err, transport.ErrConnectionClosed) {
		t.Fatalf("receiveLoop = %v, want ErrConnectionClosed", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("frames seen = %v, want [1 2]", seen)
	}
	if !engaged.Engaged() {
		t.Error("toggle frame did not engage control")
	}
}

func TestReceiveLoopReturnsNilOnCancel(t *testing.T) {
	rx := newScriptedReceiver()
	d, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- receiveLoop(ctx, rx, d, nil) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("receiveLoop = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiveLoop did not return after cancel")
	}
}

func TestWatchPause(t *testing.T) {
	gate := &dispatch.Gate{}
	WatchPause(strings.NewReader("q\n"), gate)
	if !gate.Paused() {
		t.Fatal("q did not pause")
	}
	WatchPause(strings.NewReader("x\n e \n"), gate)
	if gate.Paused() {
		t.Fatal("e did not resume")
	}
	WatchPause(strings.NewReader("q\ne\nq\n"), gate)
	if !gate.Paused() {
		t.Fatal("last command q did not leave the gate paused")
	}
}
