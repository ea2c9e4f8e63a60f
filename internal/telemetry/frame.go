// Package telemetry defines the frame the sender emits once per tick and
// the payload codecs that carry it over the wire.
//
// The JSON form of a frame is
//
//	{"timestamp": 12.5, "leftEvent": ["single", 96], "rightEvent": null,
//	 "position": [0, 0.1, 0], "attitude": [3.2, -1.0, 14.8],
//	 "buttons": {"22": "onclick"}}
//
// Every field but timestamp may be null. The CBOR form carries the same
// structure.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/inertial_mouse/internal/button"
	"github.com/relabs-tech/inertial_mouse/internal/tap"
)

// ErrMissingTimestamp is returned when a payload has no timestamp.
var ErrMissingTimestamp = errors.New("telemetry: missing timestamp")

// TapEvent is a tap as carried on the wire: a two-element [kind, index]
// array.
type TapEvent struct {
	_     struct{} `cbor:",toarray"`
	Kind  tap.Kind
	Index uint64
}

// NewTapEvent converts a detector event.
func NewTapEvent(ev tap.Event) *TapEvent {
	return &TapEvent{Kind: ev.Kind, Index: ev.Index}
}

func (e TapEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Kind, e.Index})
}

func (e *TapEvent) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tap event: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("tap event: want [kind, index], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Kind); err != nil {
		return fmt.Errorf("tap event kind: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Index); err != nil {
		return fmt.Errorf("tap event index: %w", err)
	}
	return nil
}

func (e *TapEvent) validate() error {
	if e == nil {
		return nil
	}
	if e.Kind != tap.Single && e.Kind != tap.Double {
		return fmt.Errorf("telemetry: unknown tap kind %q", e.Kind)
	}
	return nil
}

// Frame is one tick of telemetry. Timestamp is in seconds and strictly
// increases within a sender session.
type Frame struct {
	Timestamp  float64                 `json:"timestamp"`
	LeftEvent  *TapEvent               `json:"leftEvent"`
	RightEvent *TapEvent               `json:"rightEvent"`
	Position   *[3]float64             `json:"position"`
	Attitude   *[3]float64             `json:"attitude"`
	Buttons    map[string]button.State `json:"buttons"`
}

// wireKeys are the frame's field names. Keys are matched exactly.
var wireKeys = []string{"timestamp", "leftEvent", "rightEvent", "position", "attitude", "buttons"}

// wireFrame tells a missing timestamp apart from a zero one. Vectors decode
// into slices so a short or long array is caught instead of zero-filled.
type wireFrame struct {
	Timestamp  *float64                `json:"timestamp"`
	LeftEvent  *TapEvent               `json:"leftEvent"`
	RightEvent *TapEvent               `json:"rightEvent"`
	Position   []float64               `json:"position"`
	Attitude   []float64               `json:"attitude"`
	Buttons    map[string]button.State `json:"buttons"`
}

// vec3 checks a decoded vector. A nil slice is an absent field.
func vec3(name string, v []float64) (*[3]float64, error) {
	if v == nil {
		return nil, nil
	}
	if len(v) != 3 {
		return nil, fmt.Errorf("telemetry: %s needs 3 elements, got %d", name, len(v))
	}
	var out [3]float64
	for i, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("telemetry: %s[%d] = %g is not finite", name, i, c)
		}
		out[i] = c
	}
	return &out, nil
}

func (w *wireFrame) frame() (Frame, error) {
	if w.Timestamp == nil {
		return Frame{}, ErrMissingTimestamp
	}
	if math.IsNaN(*w.Timestamp) || math.IsInf(*w.Timestamp, 0) {
		return Frame{}, fmt.Errorf("telemetry: timestamp %g is not finite", *w.Timestamp)
	}
	if err := w.LeftEvent.validate(); err != nil {
		return Frame{}, err
	}
	if err := w.RightEvent.validate(); err != nil {
		return Frame{}, err
	}
	position, err := vec3("position", w.Position)
	if err != nil {
		return Frame{}, err
	}
	attitude, err := vec3("attitude", w.Attitude)
	if err != nil {
		return Frame{}, err
	}
	for id, st := range w.Buttons {
		if !st.Valid() {
			return Frame{}, fmt.Errorf("telemetry: button %q has unknown state %q", id, st)
		}
	}
	return Frame{
		Timestamp:  *w.Timestamp,
		LeftEvent:  w.LeftEvent,
		RightEvent: w.RightEvent,
		Position:   position,
		Attitude:   attitude,
		Buttons:    w.Buttons,
	}, nil
}
