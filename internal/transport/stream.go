package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

const headerLen = 4

// Stream is the reliable discipline: [4-byte big-endian length][payload].
// Receive blocks until a whole frame has arrived or the connection fails.
type Stream struct {
	conn     io.ReadWriteCloser
	codec    telemetry.Codec
	maxFrame int

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewStream frames over an established connection.
func NewStream(conn io.ReadWriteCloser, codec telemetry.Codec, maxFrame int) *Stream {
	return &Stream{conn: conn, codec: codec, maxFrame: maxFrame}
}

// Send writes one length-prefixed frame.
func (s *Stream) Send(f telemetry.Frame) error {
	payload, err := s.codec.Encode(f)
	if err != nil {
		return err
	}
	if len(payload) > s.maxFrame {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(payload), s.maxFrame)
	}

	buf := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerLen:], payload)

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.conn.Write(buf); err != nil {
		return classify(err)
	}
	return nil
}

// Receive reads one frame. It never reports "no data".
func (s *Stream) Receive() (telemetry.Frame, bool, error) {
	var header [headerLen]byte
	if err := readExact(s.conn, header[:]); err != nil {
		return telemetry.Frame{}, false, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if uint64(n) > uint64(s.maxFrame) {
		return telemetry.Frame{}, false, fmt.Errorf("%w: header announces %d bytes, limit %d", ErrFrameTooLarge, n, s.maxFrame)
	}

	payload := make([]byte, n)
	if err := readExact(s.conn, payload); err != nil {
		return telemetry.Frame{}, false, err
	}
	f, err := s.codec.Decode(payload)
	if err != nil {
		return telemetry.Frame{}, false, malformed(err)
	}
	return f, true, nil
}

// Close closes the underlying connection. A Receive blocked on it returns
// ErrConnectionClosed.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.conn.Close() })
	return s.closeErr
}

// readExact fills buf, looping over short reads. A read that returns no
// bytes means the connection is gone.
func readExact(r io.Reader, buf []byte) error {
	for got := 0; got < len(buf); {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			return classify(err)
		}
		if n == 0 {
			return ErrConnectionClosed
		}
	}
	return nil
}

func classify(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return fmt.Errorf("transport: %w", err)
}

// ListenStream waits for exactly one receiver to connect on addr. It
// returns early if ctx is cancelled.
func ListenStream(ctx context.Context, addr string, codec telemetry.Codec, maxFrame int) (*Stream, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	defer ln.Close()
	log.Printf("stream: waiting for a receiver on %s", ln.Addr())

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	log.Printf("stream: receiver connected from %s", conn.RemoteAddr())
	return NewStream(conn, codec, maxFrame), nil
}

// DialStream connects to a listening sender.
func DialStream(ctx context.Context, addr string, codec telemetry.Codec, maxFrame int) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	log.Printf("stream: connected to %s", addr)
	return NewStream(conn, codec, maxFrame), nil
}

// OpenSerialStream frames over a serial device such as a bound RFCOMM tty.
func OpenSerialStream(port string, baud int, codec telemetry.Codec, maxFrame int) (*Stream, error) {
	conn, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open serial %s: %w", port, err)
	}
	log.Printf("stream: opened %s at %d baud", port, baud)
	return NewStream(conn, codec, maxFrame), nil
}
