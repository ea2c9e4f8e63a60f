package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/config"
	"github.com/relabs-tech/inertial_mouse/internal/dispatch"
	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
	"github.com/relabs-tech/inertial_mouse/internal/transport"
)

// receiveLoop feeds every accepted frame to d and then to onFrame. It
// returns nil once ctx is cancelled and an error when the connection is
// lost. Malformed frames are logged and skipped.
func receiveLoop(ctx context.Context, rx transport.Receiver, d *dispatch.Dispatcher, onFrame func(telemetry.Frame)) error {
	stop := context.AfterFunc(ctx, func() { rx.Close() })
	defer stop()

	for {
		f, ok, err := rx.Receive()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, transport.ErrMalformedFrame):
				log.Warnf("receiver: %v", err)
				continue
			default:
				return err
			}
		}
		if !ok {
			continue
		}

		log.Debugf("receiver: frame t=%.3f", f.Timestamp)
		if err := d.Dispatch(f); err != nil {
			log.Warnf("receiver: %v", err)
		}
		if onFrame != nil {
			onFrame(f)
		}
	}
}

// RunReceiver opens the configured transport and drives the pointer until
// ctx is cancelled.
func RunReceiver(ctx context.Context) error {
	cfg := config.Get()

	engaged := &dispatch.Engagement{}
	gate := &dispatch.Gate{}
	d := dispatch.New(dispatch.Config{
		Screen: dispatch.Screen{
			Width:    cfg.ScreenWidth,
			Height:   cfg.ScreenHeight,
			Margin:   cfg.ScreenMargin,
			RangeDeg: cfg.AttitudeRangeDeg,
		},
		ToggleButton: cfg.ToggleButton,
		HotkeyButton: cfg.HotkeyButton,
		Hotkey:       cfg.Hotkey,
	}, dispatch.LogPointer{}, engaged, gate)

	go WatchPause(os.Stdin, gate)

	var onFrame func(telemetry.Frame)
	if cfg.WebServerPort > 0 {
		m := NewMonitor(d, engaged, gate)
		onFrame = m.Publish
		addr := fmt.Sprintf(":%d", cfg.WebServerPort)
		go func() {
			if err := m.Serve(ctx, addr); err != nil {
				log.Warnf("monitor: %v", err)
			}
		}()
	}

	log.Printf("receiver: opening %s transport (%s payloads)", cfg.Transport, cfg.PayloadCodec)
	rx, err := transport.OpenReceiver(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer rx.Close()

	log.Printf("receiver: waiting for frames, press the toggle button (%s) to take control", cfg.ToggleButton)
	return receiveLoop(ctx, rx, d, onFrame)
}
