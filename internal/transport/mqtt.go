package transport

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

// inboxSize bounds frames buffered between the MQTT callback and Receive.
const inboxSize = 64

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("transport: MQTT connect %s: %w", broker, token.Error())
	}
	log.Printf("mqtt: connected to %s as %s", broker, clientID)
	return client, nil
}

// MQTTSender publishes frames at QoS 0 without retention, so a late
// subscriber never sees an old pose.
type MQTTSender struct {
	client mqtt.Client
	topic  string
	codec  telemetry.Codec
}

func NewMQTTSender(broker, clientID, topic string, codec telemetry.Codec) (*MQTTSender, error) {
	client, err := connectMQTT(broker, clientID)
	if err != nil {
		return nil, err
	}
	return &MQTTSender{client: client, topic: topic, codec: codec}, nil
}

func (s *MQTTSender) Send(f telemetry.Frame) error {
	payload, err := s.codec.Encode(f)
	if err != nil {
		return err
	}
	if token := s.client.Publish(s.topic, 0, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("transport: MQTT publish: %w", token.Error())
	}
	return nil
}

func (s *MQTTSender) Close() error {
	s.client.Disconnect(250)
	return nil
}

// MQTTReceiver subscribes to the telemetry topic and applies the same
// staleness gate and timeout as the datagram receiver.
type MQTTReceiver struct {
	client  mqtt.Client
	topic   string
	codec   telemetry.Codec
	timeout time.Duration
	gate    staleGate

	inbox     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newMQTTReceiver(codec telemetry.Codec, timeout time.Duration) *MQTTReceiver {
	return &MQTTReceiver{
		codec:   codec,
		timeout: timeout,
		inbox:   make(chan []byte, inboxSize),
		done:    make(chan struct{}),
	}
}

func NewMQTTReceiver(broker, clientID, topic string, codec telemetry.Codec, timeout time.Duration) (*MQTTReceiver, error) {
	client, err := connectMQTT(broker, clientID)
	if err != nil {
		return nil, err
	}
	r := newMQTTReceiver(codec, timeout)
	r.client, r.topic = client, topic

	if token := client.Subscribe(topic, 0, r.handle); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("transport: MQTT subscribe %s: %w", topic, token.Error())
	}
	log.Printf("mqtt: subscribed to %s", topic)
	return r, nil
}

// handle runs on the MQTT client's goroutine. It never blocks; when the
// inbox is full the message is dropped like a lost datagram.
func (r *MQTTReceiver) handle(_ mqtt.Client, msg mqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	select {
	case r.inbox <- payload:
	default:
		log.Debugf("mqtt: inbox full, dropping message on %s", msg.Topic())
	}
}

func (r *MQTTReceiver) Receive() (telemetry.Frame, bool, error) {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	for {
		select {
		case <-r.done:
			return telemetry.Frame{}, false, ErrConnectionClosed
		case <-timer.C:
			return telemetry.Frame{}, false, nil
		case payload := <-r.inbox:
			f, err := r.codec.Decode(payload)
			if err != nil {
				return telemetry.Frame{}, false, malformed(err)
			}
			if !r.gate.accept(f.Timestamp) {
				log.Debugf("mqtt: dropping stale frame %.6f", f.Timestamp)
				continue
			}
			return f, true, nil
		}
	}
}

func (r *MQTTReceiver) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.gate.reset()
		if r.client != nil {
			r.client.Unsubscribe(r.topic).Wait()
			r.client.Disconnect(250)
		}
	})
	return nil
}
