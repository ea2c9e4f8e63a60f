package transport

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

func listenLoopback(t *testing.T, timeout time.Duration) (*DatagramReceiver, *DatagramSender) {
	t.Helper()
	rx, err := ListenDatagram("127.0.0.1:0", telemetry.JSON{}, timeout, testMaxFrame)
	if err != nil {
		t.Fatalf("ListenDatagram: %v", err)
	}
	t.Cleanup(func() { rx.Close() })
	tx, err := DialDatagram(rx.LocalAddr().String(), telemetry.JSON{})
	if err != nil {
		t.Fatalf("DialDatagram: %v", err)
	}
	t.Cleanup(func() { tx.Close() })
	return rx, tx
}

func drain(t *testing.T, rx Receiver) []float64 {
	t.Helper()
	var got []float64
	for {
		f, ok, err := rx.Receive()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if !ok {
			return got
		}
		got = append(got, f.Timestamp)
	}
}

func TestDatagramDropsStaleFrames(t *testing.T) {
	rx, tx := listenLoopback(t, 200*time.Millisecond)
	for _, ts := range []float64{5, 3, 7, 4} {
		if err := tx.Send(sampleFrame(ts)); err != nil {
			t.Fatalf("Send(%g): %v", ts, err)
		}
	}

	got := drain(t, rx)
	if len(got) != 2 || got[0] != 5 || got[1] != 7 {
		t.Fatalf("accepted %v, want [5 7]", got)
	}
}

func TestDatagramTimeoutIsNoData(t *testing.T) {
	rx, _ := listenLoopback(t, 50*time.Millisecond)

	start := time.Now()
	f, ok, err := rx.Receive()
	if err != nil {
		t.Fatalf("Receive error = %v, want none", err)
	}
	if ok {
		t.Fatalf("Receive returned %+v with nothing sent", f)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond || elapsed > time.Second {
		t.Errorf("Receive returned after %v, want about the 50ms timeout", elapsed)
	}
}

func TestDatagramMalformedIsReported(t *testing.T) {
	rx, tx := listenLoopback(t, 200*time.Millisecond)
	if _, err := tx.conn.Write([]byte("not a frame")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, ok, err := rx.Receive()
	if ok || !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("ok=%v err=%v, want ErrMalformedFrame", ok, err)
	}

	// a bad datagram does not poison the gate
	if err := tx.Send(sampleFrame(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok, err := rx.Receive(); !ok || err != nil {
		t.Fatalf("Receive after malformed: ok=%v err=%v", ok, err)
	}
}

func TestDatagramReceiveAfterClose(t *testing.T) {
	rx, _ := listenLoopback(t, 50*time.Millisecond)
	rx.Close()
	if _, _, err := rx.Receive(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("error = %v, want ErrConnectionClosed", err)
	}
}

func TestStaleGateReset(t *testing.T) {
	var g staleGate
	if !g.accept(10) || g.accept(10) || g.accept(9) || !g.accept(10.5) {
		t.Fatal("gate must accept only strictly newer timestamps")
	}
	g.reset()
	if !g.accept(1) {
		t.Fatal("reset gate rejected an older session's timestamp")
	}
}

// fakeMessage is a minimal mqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ mqtt.Message = fakeMessage{}

func TestMQTTReceiverDropsStaleFrames(t *testing.T) {
	rx := newMQTTReceiver(telemetry.JSON{}, 50*time.Millisecond)
	defer rx.Close()

	for _, ts := range []float64{5, 3, 7, 4} {
		payload, err := telemetry.JSON{}.Encode(sampleFrame(ts))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		rx.handle(nil, fakeMessage{topic: "inertial/mouse/telemetry", payload: payload})
	}

	got := drain(t, rx)
	if len(got) != 2 || got[0] != 5 || got[1] != 7 {
		t.Fatalf("accepted %v, want [5 7]", got)
	}
}

func TestMQTTReceiverMalformedAndClose(t *testing.T) {
	rx := newMQTTReceiver(telemetry.JSON{}, 50*time.Millisecond)
	rx.handle(nil, fakeMessage{payload: []byte(`{"timestamp": "soon"}`)})
	if _, _, err := rx.Receive(); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("error = %v, want ErrMalformedFrame", err)
	}

	rx.Close()
	if _, _, err := rx.Receive(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("after Close: %v, want ErrConnectionClosed", err)
	}
}

func TestMQTTHandlerNeverBlocks(t *testing.T) {
	rx := newMQTTReceiver(telemetry.JSON{}, 50*time.Millisecond)
	defer rx.Close()
	done := make(chan struct{})
	go func() {
		for i := 0; i < inboxSize*2; i++ {
			rx.handle(nil, fakeMessage{payload: []byte(`{}`)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked on a full inbox")
	}
}
