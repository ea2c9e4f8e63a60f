package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// GPIOLevels reads push buttons wired between a BCM pin and ground. Pins
// are pulled up, so a pressed button reads low.
type GPIOLevels struct {
	pins map[string]gpio.PinIn
}

// OpenGPIOLevels configures one input per key id. Key "17" is pin GPIO17.
func OpenGPIOLevels(keys []string) (*GPIOLevels, error) {
	pins := make(map[string]gpio.PinIn, len(keys))
	for _, k := range keys {
		p := gpioreg.ByName("GPIO" + k)
		if p == nil {
			return nil, fmt.Errorf("button: pin GPIO%s not found", k)
		}
		pins[k] = p
	}
	return NewGPIOLevels(pins)
}

// NewGPIOLevels configures the given pins as pulled-up inputs.
func NewGPIOLevels(pins map[string]gpio.PinIn) (*GPIOLevels, error) {
	for k, p := range pins {
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, &HardwareError{Op: "configure " + p.Name(), Device: "button " + k, Err: err}
		}
	}
	return &GPIOLevels{pins: pins}, nil
}

// ReadLevels reports true for every key whose pin is low.
func (g *GPIOLevels) ReadLevels(keys []string) (map[string]bool, error) {
	levels := make(map[string]bool, len(keys))
	for _, k := range keys {
		p, ok := g.pins[k]
		if !ok {
			return nil, fmt.Errorf("button: no pin configured for key %q", k)
		}
		levels[k] = p.Read() == gpio.Low
	}
	return levels, nil
}
