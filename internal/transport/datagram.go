package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

// DatagramSender sends one payload per UDP datagram.
type DatagramSender struct {
	conn  net.Conn
	codec telemetry.Codec
}

// DialDatagram targets a receiver at addr.
func DialDatagram(addr string, codec telemetry.Codec) (*DatagramSender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp %s: %w", addr, err)
	}
	log.Printf("datagram: sending to %s", addr)
	return &DatagramSender{conn: conn, codec: codec}, nil
}

// Send transmits f. A failed write is reported but the frame is not
// resent.
func (s *DatagramSender) Send(f telemetry.Frame) error {
	payload, err := s.codec.Encode(f)
	if err != nil {
		return err
	}
	if _, err := s.conn.Write(payload); err != nil {
		return classify(err)
	}
	return nil
}

func (s *DatagramSender) Close() error { return s.conn.Close() }

// DatagramReceiver accepts only frames newer than the last one accepted.
type DatagramReceiver struct {
	conn    net.PacketConn
	codec   telemetry.Codec
	timeout time.Duration
	buf     []byte
	gate    staleGate
}

// ListenDatagram binds addr.
func ListenDatagram(addr string, codec telemetry.Codec, timeout time.Duration, maxFrame int) (*DatagramReceiver, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp %s: %w", addr, err)
	}
	log.Printf("datagram: listening on %s", conn.LocalAddr())
	return NewDatagramReceiver(conn, codec, timeout, maxFrame), nil
}

// NewDatagramReceiver reads from an already bound conn.
func NewDatagramReceiver(conn net.PacketConn, codec telemetry.Codec, timeout time.Duration, maxFrame int) *DatagramReceiver {
	// one spare byte detects oversized datagrams
	return &DatagramReceiver{conn: conn, codec: codec, timeout: timeout, buf: make([]byte, maxFrame+1)}
}

// LocalAddr returns the bound address.
func (r *DatagramReceiver) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Receive waits up to the receive timeout for a fresh frame. Stale or
// duplicate frames are dropped without ending the wait.
func (r *DatagramReceiver) Receive() (telemetry.Frame, bool, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return telemetry.Frame{}, false, classify(err)
	}
	for {
		n, from, err := r.conn.ReadFrom(r.buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return telemetry.Frame{}, false, nil
			}
			return telemetry.Frame{}, false, classify(err)
		}
		if n == len(r.buf) {
			return telemetry.Frame{}, false, fmt.Errorf("%w: datagram from %s exceeds %d bytes", ErrFrameTooLarge, from, len(r.buf)-1)
		}

		f, err := r.codec.Decode(r.buf[:n])
		if err != nil {
			return telemetry.Frame{}, false, malformed(err)
		}
		if !r.gate.accept(f.Timestamp) {
			log.Debugf("datagram: dropping stale frame %.6f from %s", f.Timestamp, from)
			continue
		}
		return f, true, nil
	}
}

// Close releases the socket and forgets the last accepted timestamp.
func (r *DatagramReceiver) Close() error {
	r.gate.reset()
	return r.conn.Close()
}
