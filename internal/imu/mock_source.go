// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"sync"
	"time"
)

type mockSource struct {
	mu       sync.Mutex
	name     string
	interval time.Duration
	tapEvery int
	n        int
}

// NewMockSource creates a mock channel that generates a smooth swaying
// rotation and, when tapEvery > 0, a short 15 Hz acceleration burst every
// tapEvery samples. Timestamps advance by exactly one poll interval per
// Read so downstream dt is deterministic.
func NewMockSource(name string, interval time.Duration, tapEvery int) Source {
	return &mockSource{name: name, interval: interval, tapEvery: tapEvery}
}

func (m *mockSource) Read() (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := int64(m.n) * m.interval.Microseconds()
	elapsed := float64(ts) / 1e6

	s := Sample{
		Source:    m.name,
		Timestamp: ts,
		Accel:     Vec3{0, 0, StandardGravity},
		Gyro: Vec3{
			0.6 * math.Cos(elapsed),
			0.4 * math.Sin(elapsed*0.7),
			0.2 * math.Cos(elapsed*0.3),
		},
	}

	if m.tapEvery > 0 {
		// 7-sample decaying burst at the start of each tap period
		k := m.n % m.tapEvery
		if m.n >= m.tapEvery && k < 7 {
			t := float64(k) * m.interval.Seconds()
			s.Accel[2] += 12 * math.Exp(-float64(k)/3) * math.Cos(2*math.Pi*15*t)
		}
	}

	m.n++
	return s, nil
}

func (m *mockSource) PollInterval() time.Duration { return m.interval }

func (m *mockSource) Close() error { return nil }
