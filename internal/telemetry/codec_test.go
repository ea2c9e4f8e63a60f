package telemetry

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/inertial_mouse/internal/button"
	"github.com/relabs-tech/inertial_mouse/internal/tap"
)

func fullFrame() Frame {
	return Frame{
		Timestamp:  1760000000.125,
		LeftEvent:  &TapEvent{Kind: tap.Single, Index: 96},
		RightEvent: &TapEvent{Kind: tap.Double, Index: 1 << 40},
		Position:   &[3]float64{0.25, -1, 0},
		Attitude:   &[3]float64{12.5, -3.75, 59.9},
		Buttons: map[string]button.State{
			"17": button.Released,
			"22": button.OnClick,
		},
	}
}

func TestRoundTrip(t *testing.T) {
	frames := map[string]Frame{
		"full":           fullFrame(),
		"timestamp only": {Timestamp: 5},
		"zero timestamp": {Timestamp: 0, Attitude: &[3]float64{}},
	}
	for _, name := range []string{"json", "cbor"} {
		codec, err := NewCodec(name)
		if err != nil {
			t.Fatalf("NewCodec(%q): %v", name, err)
		}
		for label, f := range frames {
			t.Run(name+"/"+label, func(t *testing.T) {
				data, err := codec.Encode(f)
				if err != nil {
					t.Fatalf("Encode: %v", err)
				}
				got, err := codec.Decode(data)
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
				if !reflect.DeepEqual(got, f) {
					t.Errorf("round trip = %+v, want %+v", got, f)
				}
			})
		}
	}
}

func TestJSONWireShape(t *testing.T) {
	f := Frame{
		Timestamp: 2.5,
		LeftEvent: &TapEvent{Kind: tap.Double, Index: 7},
		Buttons:   map[string]button.State{"22": button.OnClick},
	}
	data, err := JSON{}.Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"timestamp":2.5,"leftEvent":["double",7],"rightEvent":null,"position":null,"attitude":null,"buttons":{"22":"onclick"}}`
	if string(data) != want {
		t.Errorf("payload = %s\nwant      %s", data, want)
	}
}

func TestDecodeAcceptsForeignPayload(t *testing.T) {
	// a frame produced by another sender, with an unknown extra field
	payload := `{"timestamp": 1700000000.5, "leftEvent": ["single", 3], "attitude": [1, 2, 3], "battery": 0.8}`
	f, err := JSON{}.Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Timestamp != 1700000000.5 || f.LeftEvent == nil || f.LeftEvent.Index != 3 {
		t.Errorf("decoded %+v", f)
	}
	if f.RightEvent != nil || f.Position != nil || f.Buttons != nil {
		t.Errorf("absent fields should stay nil: %+v", f)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `timestamp=5`},
		{"truncated", `{"timestamp": 5, "leftEvent": ["sin`},
		{"timestamp wrong type", `{"timestamp": "5"}`},
		{"short tap event", `{"timestamp": 5, "leftEvent": ["single"]}`},
		{"unknown tap kind", `{"timestamp": 5, "leftEvent": ["triple", 1]}`},
		{"negative index", `{"timestamp": 5, "rightEvent": ["single", -1]}`},
		{"unknown button state", `{"timestamp": 5, "buttons": {"22": "held"}}`},
		{"non-numeric attitude", `{"timestamp": 5, "attitude": ["a", 2, 3]}`},
		{"short attitude", `{"timestamp": 5, "attitude": [10]}`},
		{"empty position", `{"timestamp": 5, "position": []}`},
		{"long position", `{"timestamp": 5, "position": [1, 2, 3, 4]}`},
		{"NaN attitude", `{"timestamp": 5, "attitude": [1, NaN, 3]}`},
		{"capitalised key", `{"Timestamp": 5}`},
		{"upper-case vector key", `{"timestamp": 5, "ATTITUDE": [1, 2, 3]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if f, err := (JSON{}).Decode([]byte(tt.payload)); err == nil {
				t.Fatalf("Decode succeeded with %+v, want error", f)
			}
		})
	}
}

func TestCBORRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		value map[string]any
	}{
		{"short attitude", map[string]any{"timestamp": 5.0, "attitude": []float64{10}}},
		{"long position", map[string]any{"timestamp": 5.0, "position": []float64{1, 2, 3, 4}}},
		{"NaN attitude", map[string]any{"timestamp": 5.0, "attitude": []float64{1, math.NaN(), 3}}},
		{"infinite position", map[string]any{"timestamp": 5.0, "position": []float64{math.Inf(1), 0, 0}}},
		{"NaN timestamp", map[string]any{"timestamp": math.NaN()}},
		{"capitalised key", map[string]any{"Timestamp": 5.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := encMode.Marshal(tt.value)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if f, err := (CBOR{}).Decode(data); err == nil {
				t.Fatalf("Decode succeeded with %+v, want error", f)
			}
		})
	}
}

func TestDecodeKeepsVectorsExact(t *testing.T) {
	att := [3]float64{10, -2.5, 30}
	for _, codec := range []Codec{JSON{}, CBOR{}} {
		data, err := codec.Encode(Frame{Timestamp: 1, Attitude: &att})
		if err != nil {
			t.Fatalf("%s Encode: %v", codec.Name(), err)
		}
		f, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("%s Decode: %v", codec.Name(), err)
		}
		if f.Attitude == nil || *f.Attitude != att || f.Position != nil {
			t.Errorf("%s decoded attitude %v position %v", codec.Name(), f.Attitude, f.Position)
		}
	}
}

func TestDecodeMissingTimestamp(t *testing.T) {
	for _, payload := range []string{`{}`, `{"timestamp": null, "attitude": [0, 0, 0]}`} {
		if _, err := (JSON{}).Decode([]byte(payload)); !errors.Is(err, ErrMissingTimestamp) {
			t.Errorf("Decode(%s) error = %v, want ErrMissingTimestamp", payload, err)
		}
	}

	data, err := encMode.Marshal(map[string]any{"attitude": []float64{1, 2, 3}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := (CBOR{}).Decode(data); !errors.Is(err, ErrMissingTimestamp) {
		t.Errorf("CBOR Decode error = %v, want ErrMissingTimestamp", err)
	}
}

func TestCBORTapEventIsArray(t *testing.T) {
	data, err := encMode.Marshal(TapEvent{Kind: tap.Single, Index: 4})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// array(2), text(6) "single", unsigned(4)
	want := append([]byte{0x82, 0x66}, append([]byte("single"), 0x04)...)
	if !reflect.DeepEqual(data, want) {
		t.Errorf("encoding = %x, want %x", data, want)
	}
}

func TestCBORRejectsGarbage(t *testing.T) {
	if _, err := (CBOR{}).Decode([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Fatal("Decode succeeded on garbage")
	}
}

func TestNewCodecUnknown(t *testing.T) {
	if _, err := NewCodec("xml"); err == nil || !strings.Contains(err.Error(), "xml") {
		t.Errorf("NewCodec(xml) error = %v", err)
	}
}

func TestStamperStrictlyIncreases(t *testing.T) {
	base := time.Unix(1760000000, 0)
	// stalled, then stepped back, then moving again
	clock := []time.Time{
		base,
		base,
		base.Add(-time.Second),
		base.Add(time.Millisecond),
	}
	i := 0
	s := NewStamper(func() time.Time {
		now := clock[i]
		i++
		return now
	})

	prev := s.Next()
	if prev != 1760000000 {
		t.Fatalf("first stamp = %f, want 1760000000", prev)
	}
	for n := 1; n < len(clock); n++ {
		ts := s.Next()
		if ts <= prev {
			t.Fatalf("stamp %d = %f not after %f", n, ts, prev)
		}
		prev = ts
	}
	if math.Abs(prev-1760000000.001) > 1e-6 {
		t.Errorf("last stamp = %f, want the clock once it moved forward", prev)
	}
}
