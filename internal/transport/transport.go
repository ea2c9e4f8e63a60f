// Package transport carries telemetry frames between the sender and the
// receiver.
//
// Two disciplines are provided. The reliable stream prefixes every payload
// with a 4-byte big-endian length and runs over TCP or a serial/RFCOMM tty.
// The lossy disciplines (UDP datagrams, MQTT at QoS 0) send one payload per
// message and drop any frame whose timestamp is not newer than the last one
// accepted. No transport retries: a lost frame is simply absent.
package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

var (
	// ErrConnectionClosed is returned once the peer or the local side has
	// closed the connection. It is never retryable.
	ErrConnectionClosed = errors.New("transport: connection closed")

	// ErrMalformedFrame wraps payloads that could not be decoded.
	ErrMalformedFrame = errors.New("transport: malformed frame")

	// ErrFrameTooLarge is a malformed frame whose length exceeds the limit.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrMalformedFrame)
)

// IsTransportError reports whether err is a connection or framing failure.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrMalformedFrame)
}

// Sender transmits frames.
type Sender interface {
	Send(f telemetry.Frame) error
	Close() error
}

// Receiver yields frames. ok is false when no frame arrived within the
// receive timeout; that is not an error.
type Receiver interface {
	Receive() (f telemetry.Frame, ok bool, err error)
	Close() error
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
}

// staleGate keeps the newest accepted timestamp.
type staleGate struct {
	mu   sync.Mutex
	last float64
	have bool
}

// accept reports whether ts is strictly newer than every accepted
// timestamp, and records it if so.
func (g *staleGate) accept(ts float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.have && ts <= g.last {
		return false
	}
	g.last, g.have = ts, true
	return true
}

func (g *staleGate) reset() {
	g.mu.Lock()
	g.have = false
	g.mu.Unlock()
}
