// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/button"
	"github.com/relabs-tech/inertial_mouse/internal/config"
	"github.com/relabs-tech/inertial_mouse/internal/imu"
	"github.com/relabs-tech/inertial_mouse/internal/orientation"
	"github.com/relabs-tech/inertial_mouse/internal/sensors"
	"github.com/relabs-tech/inertial_mouse/internal/tap"
	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
	"github.com/relabs-tech/inertial_mouse/internal/transport"
)

// channel is the per-sensor pipeline. Nothing in it is shared with other
// channels.
type channel struct {
	name     string
	src      imu.Source
	attitude *orientation.AttitudeIntegrator
	taps     *tap.Detector
}

// Sender polls every channel once per tick and assembles one frame.
type Sender struct {
	channels []*channel
	buttons  *button.Debouncer // nil when the capability is disabled
	stamper  *telemetry.Stamper
	interval time.Duration
}

// NewSender wires one integrator and one tap detector to each source. The
// first source is the left (primary) channel. levels may be nil.
func NewSender(cfg *config.Config, sources []imu.Source, levels button.LevelReader) (*Sender, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("sender: no sensor channels")
	}
	s := &Sender{
		stamper:  telemetry.NewStamper(nil),
		interval: sources[0].PollInterval(),
	}
	for i, src := range sources {
		det, err := tap.New(tap.Config{
			SampleRate:      1 / src.PollInterval().Seconds(),
			Window:          cfg.TapWindow,
			Overlap:         cfg.TapOverlap,
			LowCut:          cfg.TapLowCut,
			HighCut:         cfg.TapHighCut,
			EnergyBandLow:   cfg.TapEnergyBandLow,
			EnergyBandHigh:  cfg.TapEnergyBandHigh,
			EnergyThreshold: cfg.TapEnergyThreshold,
			PeakThreshold:   cfg.TapPeakThreshold,
			DoubleTapWindow: cfg.TapDoubleWindow,
		})
		if err != nil {
			return nil, fmt.Errorf("sender: %s channel: %w", sensors.ChannelNames[i], err)
		}
		s.channels = append(s.channels, &channel{
			name:     sensors.ChannelNames[i],
			src:      src,
			attitude: orientation.NewAttitudeIntegrator(src.PollInterval(), cfg.TiltSensitivity),
			taps:     det,
		})
	}
	if levels != nil && len(cfg.ButtonKeys) > 0 {
		deb, err := button.NewDebouncer(levels, cfg.ButtonKeys)
		if err != nil {
			return nil, fmt.Errorf("sender: %w", err)
		}
		s.buttons = deb
	}
	return s, nil
}

// Tick runs one poll→process cycle. ok is false when nothing could be
// read this tick.
func (s *Sender) Tick() (f telemetry.Frame, ok bool) {
	for i, ch := range s.channels {
		sample, err := ch.src.Read()
		if err != nil {
			log.Warnf("sender: %s channel read: %v", ch.name, err)
			continue
		}
		deg, err := ch.attitude.Update(sample)
		if err != nil {
			log.Warnf("sender: %s channel attitude: %v", ch.name, err)
			continue
		}
		ok = true

		var ev *telemetry.TapEvent
		if e, tapped := ch.taps.Push(sample.Accel); tapped {
			ev = telemetry.NewTapEvent(e)
			log.Printf("sender: %s %s tap at sample %d", ch.name, e.Kind, e.Index)
		}

		if i == 0 {
			att := deg.Array()
			pos := ch.attitude.Position().Array()
			f.Attitude, f.Position, f.LeftEvent = &att, &pos, ev
		} else {
			f.RightEvent = ev
		}
	}

	if s.buttons != nil {
		states, err := s.buttons.Poll()
		if err != nil {
			log.Warnf("sender: %v", err)
		} else {
			f.Buttons = states
			ok = true
		}
	}

	if ok {
		f.Timestamp = s.stamper.Next()
	}
	return f, ok
}

// Run ticks at the primary sensor's poll interval and sends every frame
// until ctx is cancelled or the stream peer goes away.
func (s *Sender) Run(ctx context.Context, tx transport.Sender) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		f, ok := s.Tick()
		if !ok {
			continue
		}
		if err := tx.Send(f); err != nil {
			if errors.Is(err, transport.ErrConnectionClosed) {
				return err
			}
			log.Warnf("sender: send: %v", err)
			continue
		}
		if f.Attitude != nil {
			log.Debugf("sender: t=%.3f attitude R=%.2f P=%.2f Y=%.2f", f.Timestamp, f.Attitude[0], f.Attitude[1], f.Attitude[2])
		}
	}
}

// RunSender opens the hardware and the transport from the global config
// and streams telemetry until ctx is cancelled.
func RunSender(ctx context.Context) error {
	cfg := config.Get()

	rig, err := sensors.Open(cfg)
	if err != nil {
		return err
	}
	defer rig.Close()

	s, err := NewSender(cfg, rig.Sources, rig.Buttons)
	if err != nil {
		return err
	}

	log.Printf("sender: opening %s transport (%s payloads)", cfg.Transport, cfg.PayloadCodec)
	tx, err := transport.OpenSender(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer tx.Close()

	log.Printf("sender: streaming %d channel(s) every %v", len(s.channels), s.interval)
	return s.Run(ctx, tx)
}
