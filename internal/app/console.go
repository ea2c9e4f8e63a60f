// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/config"
	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

// RunConsole subscribes to the telemetry topic and prints every frame
// until ctx is cancelled. It only observes; it does not drive a pointer.
func RunConsole(ctx context.Context) error {
	cfg := config.Get()
	codec, err := telemetry.NewCodec(cfg.PayloadCodec)
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicTelemetry, 0, consoleHandler(codec, os.Stdout))
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTelemetry)

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}

func consoleHandler(codec telemetry.Codec, out io.Writer) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		f, err := codec.Decode(msg.Payload())
		if err != nil {
			log.Printf("console: frame decode error: %v", err)
			return
		}
		fmt.Fprintln(out, formatFrame(f))
	}
}

// formatFrame renders a frame on one line, omitting absent fields.
func formatFrame(f telemetry.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%.3f]", f.Timestamp)
	if a := f.Attitude; a != nil {
		fmt.Fprintf(&b, "  ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f", a[0], a[1], a[2])
	}
	if p := f.Position; p != nil {
		fmt.Fprintf(&b, "  POS=(%+.3f, %+.3f)", p[0], p[1])
	}
	if e := f.LeftEvent; e != nil {
		fmt.Fprintf(&b, "  LEFT=%s@%d", e.Kind, e.Index)
	}
	if e := f.RightEvent; e != nil {
		fmt.Fprintf(&b, "  RIGHT=%s@%d", e.Kind, e.Index)
	}
	if len(f.Buttons) > 0 {
		keys := make([]string, 0, len(f.Buttons))
		for k := range f.Buttons {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("  BTN")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, f.Buttons[k])
		}
	}
	return b.String()
}
