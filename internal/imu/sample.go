package imu

import (
	"math"
	"time"
)

// StandardGravity converts accelerometer readings in g to m/s².
const StandardGravity = 9.80665

// Vec3 is a three-axis reading.
type Vec3 [3]float64

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Sample represents a single inertial reading from one channel.
type Sample struct {
	Source    string `json:"source"`    // "left" or "right"
	Timestamp int64  `json:"timestamp"` // monotonic µs since the source was opened
	Accel     Vec3   `json:"accel"`     // m/s²
	Gyro      Vec3   `json:"gyro"`      // rad/s
}

// Source is a sensor channel. Read returns one sample per call; a failed
// read yields no data for that tick.
type Source interface {
	Read() (Sample, error)
	// PollInterval is the sensor's recommended poll cadence.
	PollInterval() time.Duration
	Close() error
}
