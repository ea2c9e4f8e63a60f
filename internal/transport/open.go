package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/inertial_mouse/internal/config"
	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

// OpenSender builds the sender side of the configured transport. With the
// TCP stream it blocks until a receiver connects.
func OpenSender(ctx context.Context, cfg *config.Config) (Sender, error) {
	codec, err := telemetry.NewCodec(cfg.PayloadCodec)
	if err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case "stream":
		var s *Stream
		if cfg.StreamMedium == "serial" {
			s, err = OpenSerialStream(cfg.SerialPort, cfg.SerialBaudRate, codec, cfg.MaxFrameSize)
		} else {
			s, err = ListenStream(ctx, cfg.ListenAddr, codec, cfg.MaxFrameSize)
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	case "datagram":
		s, err := DialDatagram(cfg.RemoteAddr, codec)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mqtt":
		s, err := NewMQTTSender(cfg.MQTTBroker, cfg.MQTTClientIDSender, cfg.TopicTelemetry, codec)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("transport: unknown transport %q", cfg.Transport)
}

// OpenReceiver builds the receiver side of the configured transport.
func OpenReceiver(ctx context.Context, cfg *config.Config) (Receiver, error) {
	codec, err := telemetry.NewCodec(cfg.PayloadCodec)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.ReceiveTimeout) * time.Millisecond
	switch cfg.Transport {
	case "stream":
		var s *Stream
		if cfg.StreamMedium == "serial" {
			s, err = OpenSerialStream(cfg.SerialPort, cfg.SerialBaudRate, codec, cfg.MaxFrameSize)
		} else {
			s, err = DialStream(ctx, cfg.RemoteAddr, codec, cfg.MaxFrameSize)
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	case "datagram":
		r, err := ListenDatagram(cfg.ListenAddr, codec, timeout, cfg.MaxFrameSize)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "mqtt":
		r, err := NewMQTTReceiver(cfg.MQTTBroker, cfg.MQTTClientIDReceiver, cfg.TopicTelemetry, codec, timeout)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("transport: unknown transport %q", cfg.Transport)
}
