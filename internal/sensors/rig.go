// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_mouse/internal/button"
	"github.com/relabs-tech/inertial_mouse/internal/config"
	"github.com/relabs-tech/inertial_mouse/internal/imu"
)

// ChannelNames labels sensor channels in configuration order.
var ChannelNames = []string{"left", "right"}

// Rig is the sender's hardware: one source per configured channel and an
// optional button reader.
type Rig struct {
	Sources []imu.Source
	// Buttons is nil when the button capability is disabled.
	Buttons button.LevelReader

	closers []func() error
}

// Open builds the rig described by cfg.
func Open(cfg *config.Config) (*Rig, error) {
	if len(cfg.SensorChannels) > len(ChannelNames) {
		return nil, fmt.Errorf("sensors: at most %d channels supported", len(ChannelNames))
	}
	rig := &Rig{}
	var err error
	switch cfg.SensorDriver {
	case "mock":
		rig.openMock(cfg)
	case "mpu6050":
		err = rig.openMPU6050(cfg)
	case "mpu9250":
		err = rig.openMPU9250(cfg)
	default:
		err = fmt.Errorf("sensors: unknown driver %q", cfg.SensorDriver)
	}
	if err != nil {
		rig.Close()
		return nil, err
	}

	if len(cfg.ButtonKeys) == 0 {
		log.Printf("buttons: no keys configured, button capability disabled")
		return rig, nil
	}
	if cfg.SensorDriver == "mock" {
		log.Printf("buttons: mock driver, button capability disabled")
		return rig, nil
	}
	levels, err := OpenGPIOLevels(cfg.ButtonKeys)
	if err != nil {
		rig.Close()
		return nil, err
	}
	rig.Buttons = levels
	log.Printf("buttons: watching keys %v", cfg.ButtonKeys)
	return rig, nil
}

func (r *Rig) openMock(cfg *config.Config) {
	// left taps every 1.5 s, right every 4 s at the default poll rate
	tapEvery := []int{150, 400}
	for i := range cfg.SensorChannels {
		r.Sources = append(r.Sources, imu.NewMockSource(ChannelNames[i], cfg.PollInterval(), tapEvery[i]))
	}
	log.Printf("sensors: %d mock channel(s)", len(r.Sources))
}

func (r *Rig) openMPU6050(cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("sensors: periph host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("sensors: open I2C bus %q: %w", cfg.I2CBus, err)
	}
	r.closers = append(r.closers, bus.Close)

	var sel Selector = &NoMux{}
	if cfg.MuxI2CAddr != 0 {
		sel = NewMux(bus, cfg.MuxI2CAddr)
		log.Printf("sensors: TCA9548A multiplexer at 0x%02X", cfg.MuxI2CAddr)
	}

	for i, ch := range cfg.SensorChannels {
		name := ChannelNames[i]
		addr := cfg.MPUI2CAddr
		if cfg.MuxI2CAddr == 0 {
			// without a multiplexer the second sensor has AD0 pulled high
			addr += uint16(i)
		}
		release, err := sel.Acquire(ch)
		if err != nil {
			return &HardwareError{Device: name + " IMU", Op: "select", Err: err}
		}
		dev, err := NewMPU6050(bus, addr, name, cfg.IMUAccelRange, cfg.IMUGyroRange, cfg.PollInterval())
		release()
		if err != nil {
			return err
		}
		src := OnChannel(sel, ch, name, dev)
		r.Sources = append(r.Sources, src)
		r.closers = append(r.closers, src.Close)
		log.Printf("%s IMU: MPU6050 at 0x%02X on channel %d", name, addr, ch)
	}
	return nil
}

func (r *Rig) openMPU9250(cfg *config.Config) error {
	if len(cfg.SensorChannels) != 1 {
		return fmt.Errorf("sensors: mpu9250 driver supports exactly one channel")
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("sensors: periph host init: %w", err)
	}
	src, err := NewMPU9250(ChannelNames[0], cfg.MPUSPIDevice, cfg.MPUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange, cfg.PollInterval())
	if err != nil {
		return err
	}
	r.Sources = append(r.Sources, src)
	r.closers = append(r.closers, src.Close)
	return nil
}

// Close releases sensors first, then the bus.
func (r *Rig) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
