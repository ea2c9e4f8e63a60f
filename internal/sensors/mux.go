package sensors

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/inertial_mouse/internal/imu"
)

// Selector grants exclusive access to one bus channel at a time. Acquire
// blocks until the bus is free; release must be called as soon as the read
// is done.
type Selector interface {
	Acquire(channel int) (release func(), err error)
}

// Mux drives a TCA9548A I2C multiplexer. Only one channel is ever enabled
// and channel reads are strictly serialized.
type Mux struct {
	mu  sync.Mutex
	dev *i2c.Dev
}

// NewMux returns a multiplexer at addr on bus.
func NewMux(bus i2c.Bus, addr uint16) *Mux {
	return &Mux{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

func (m *Mux) Acquire(channel int) (func(), error) {
	if channel < 0 || channel > 7 {
		return nil, fmt.Errorf("mux: channel %d out of range 0-7", channel)
	}
	m.mu.Lock()
	if _, err := m.dev.Write([]byte{1 << channel}); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("mux: select channel %d: %w", channel, err)
	}
	return func() {
		// disable all channels so a stray transaction reaches no sensor
		if _, err := m.dev.Write([]byte{0}); err != nil {
			log.Warnf("mux: release channel %d: %v", channel, err)
		}
		m.mu.Unlock()
	}, nil
}

// NoMux serializes reads on a bus without a channel selector.
type NoMux struct {
	mu sync.Mutex
}

func (n *NoMux) Acquire(int) (func(), error) {
	n.mu.Lock()
	return n.mu.Unlock, nil
}

// muxedSource reads an inner source with its bus channel selected.
type muxedSource struct {
	name    string
	channel int
	sel     Selector
	inner   imu.Source
}

// OnChannel wraps src so every Read holds channel on sel for exactly the
// duration of the read.
func OnChannel(sel Selector, channel int, name string, src imu.Source) imu.Source {
	return &muxedSource{name: name, channel: channel, sel: sel, inner: src}
}

func (s *muxedSource) Read() (imu.Sample, error) {
	release, err := s.sel.Acquire(s.channel)
	if err != nil {
		return imu.Sample{}, &HardwareError{Op: "select", Device: s.name + " IMU", Err: err}
	}
	defer release()
	return s.inner.Read()
}

func (s *muxedSource) PollInterval() time.Duration { return s.inner.PollInterval() }

func (s *muxedSource) Close() error {
	release, err := s.sel.Acquire(s.channel)
	if err != nil {
		return &HardwareError{Op: "select", Device: s.name + " IMU", Err: err}
	}
	defer release()
	return s.inner.Close()
}
