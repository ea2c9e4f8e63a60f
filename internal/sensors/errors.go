package sensors

import "fmt"

// HardwareError reports a failed bus or sensor operation. The failing tick
// yields no data; callers log it and carry on with the next poll.
type HardwareError struct {
	Device string // "left IMU", "button 22"
	Op     string
	Err    error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }
