package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns frames into payloads and back. Decode never substitutes
// defaults: a payload that does not describe a valid frame is an error.
type Codec interface {
	Name() string
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
}

// NewCodec returns the codec registered under name ("json" or "cbor").
func NewCodec(name string) (Codec, error) {
	switch name {
	case "json":
		return JSON{}, nil
	case "cbor":
		return CBOR{}, nil
	}
	return nil, fmt.Errorf("telemetry: unknown codec %q", name)
}

// JSON is the default, human-readable codec.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("telemetry: encode json: %w", err)
	}
	return data, nil
}

func (JSON) Decode(data []byte) (Frame, error) {
	if err := checkKeyCase(data); err != nil {
		return Frame{}, err
	}
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("telemetry: decode json: %w", err)
	}
	return w.frame()
}

// checkKeyCase rejects keys that differ from a frame field only in case,
// which encoding/json would otherwise accept. Unrelated keys are ignored.
func checkKeyCase(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("telemetry: decode json: %w", err)
	}
	for key := range obj {
		for _, want := range wireKeys {
			if key != want && strings.EqualFold(key, want) {
				return fmt.Errorf("telemetry: decode json: key %q, want %q", key, want)
			}
		}
	}
	return nil
}

// encMode uses Core Deterministic Encoding so equal frames encode to
// identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("telemetry: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		FieldNameMatching: cbor.FieldNameMatchingCaseSensitive,
	}.DecMode()
	if err != nil {
		panic("telemetry: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR is the compact binary codec. Field names follow the JSON tags.
type CBOR struct{}

func (CBOR) Name() string { return "cbor" }

func (CBOR) Encode(f Frame) ([]byte, error) {
	data, err := encMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("telemetry: encode cbor: %w", err)
	}
	return data, nil
}

func (CBOR) Decode(data []byte) (Frame, error) {
	var w wireFrame
	if err := decMode.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("telemetry: decode cbor: %w", err)
	}
	return w.frame()
}
