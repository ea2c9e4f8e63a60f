// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"

	"github.com/relabs-tech/inertial_mouse/internal/imu"
)

type mpu9250Source struct {
	name     string
	imu      *mpu9250.MPU9250
	interval time.Duration
	accelLSB float64
	gyroLSB  float64
	start    time.Time
}

// NewMPU9250 initializes an MPU9250 over SPI. Each SPI sensor has its own
// chip select, so it needs no bus-channel selector.
func NewMPU9250(name, spiDev, csPin string, accelRange, gyroRange byte, interval time.Duration) (imu.Source, error) {
	if accelRange > 3 || gyroRange > 3 {
		return nil, fmt.Errorf("%s IMU: range out of 0-3 (accel %d, gyro %d)", name, accelRange, gyroRange)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, spiDev, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, &HardwareError{Op: "init", Device: name + " IMU", Err: err}
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	log.Printf("%s IMU: accelerometer range set to %d (±%dg)", name, accelRange, []int{2, 4, 8, 16}[accelRange])

	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}
	log.Printf("%s IMU: gyroscope range set to %d (±%d°/s)", name, gyroRange, []int{250, 500, 1000, 2000}[gyroRange])

	if err := dev.Calibrate(); err != nil {
		log.Warnf("%s IMU calibration failed: %v", name, err)
	} else {
		log.Printf("%s IMU calibration complete", name)
	}

	return &mpu9250Source{
		name:     name,
		imu:      dev,
		interval: interval,
		accelLSB: accelLSBPerG[accelRange],
		gyroLSB:  gyroLSBPerDegS[gyroRange],
		start:    time.Now(),
	}, nil
}

// Read reads accelerometer and gyroscope and scales them to SI units.
func (s *mpu9250Source) Read() (imu.Sample, error) {
	var raw [6]int16
	reads := []struct {
		axis string
		fn   func() (int16, error)
	}{
		{"accel X", s.imu.GetAccelerationX},
		{"accel Y", s.imu.GetAccelerationY},
		{"accel Z", s.imu.GetAccelerationZ},
		{"gyro X", s.imu.GetRotationX},
		{"gyro Y", s.imu.GetRotationY},
		{"gyro Z", s.imu.GetRotationZ},
	}
	for i, r := range reads {
		v, err := r.fn()
		if err != nil {
			return imu.Sample{}, &HardwareError{Op: "read " + r.axis, Device: s.name + " IMU", Err: err}
		}
		raw[i] = v
	}

	sample := imu.Sample{
		Source:    s.name,
		Timestamp: time.Since(s.start).Microseconds(),
	}
	for axis := 0; axis < 3; axis++ {
		sample.Accel[axis] = float64(raw[axis]) / s.accelLSB * imu.StandardGravity
		sample.Gyro[axis] = float64(raw[3+axis]) / s.gyroLSB * math.Pi / 180
	}
	return sample, nil
}

func (s *mpu9250Source) PollInterval() time.Duration { return s.interval }

func (s *mpu9250Source) Close() error { return nil }
