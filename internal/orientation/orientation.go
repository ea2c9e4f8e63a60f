package orientation

import (
	"errors"
	"math"
	"time"

	"github.com/relabs-tech/inertial_mouse/internal/imu"
)

// AttitudeLimit is the saturating joint limit applied to every attitude
// axis, in radians.
const AttitudeLimit = math.Pi / 3

// DeadZoneDeg is the tilt magnitude below which the position is frozen.
const DeadZoneDeg = 30.0

// DefaultSensitivity is the tilt-to-position gain per degree-second.
const DefaultSensitivity = 0.01

var ErrNonPositiveDt = errors.New("orientation: dt must be positive")

// Pose is the canonical representation of orientation for the app.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Array returns the pose as [roll, pitch, yaw].
func (p Pose) Array() [3]float64 { return [3]float64{p.Roll, p.Pitch, p.Yaw} }

// Position is the clipped 2-D (plus unused z) cursor state in [-1, 1].
type Position struct {
	X, Y, Z float64
}

// Array returns the position as [x, y, z].
func (p Position) Array() [3]float64 { return [3]float64{p.X, p.Y, p.Z} }

// AttitudeIntegrator integrates angular rate into a bounded orientation and
// maps tilt onto a clipped position. One instance belongs to one channel
// session and is not safe for concurrent use.
type AttitudeIntegrator struct {
	attitude    Pose // radians
	position    Position
	sensitivity float64
	nominalDt   float64

	lastTimestamp int64
	haveLast      bool
}

// NewAttitudeIntegrator returns an integrator whose first update uses
// pollInterval as dt. sensitivity <= 0 selects DefaultSensitivity.
func NewAttitudeIntegrator(pollInterval time.Duration, sensitivity float64) *AttitudeIntegrator {
	if sensitivity <= 0 {
		sensitivity = DefaultSensitivity
	}
	return &AttitudeIntegrator{
		sensitivity: sensitivity,
		nominalDt:   pollInterval.Seconds(),
	}
}

// Integrate adds gyro*dt to each axis and hard-clips the result to
// [-AttitudeLimit, AttitudeLimit]. Saturation, not wraparound.
func (a *AttitudeIntegrator) Integrate(gyro imu.Vec3, dt float64) error {
	if !(dt > 0) {
		return ErrNonPositiveDt
	}
	a.attitude.Roll = clip(a.attitude.Roll+gyro[0]*dt, AttitudeLimit)
	a.attitude.Pitch = clip(a.attitude.Pitch+gyro[1]*dt, AttitudeLimit)
	a.attitude.Yaw = clip(a.attitude.Yaw+gyro[2]*dt, AttitudeLimit)
	return nil
}

// Attitude returns the current attitude in radians.
func (a *AttitudeIntegrator) Attitude() Pose { return a.attitude }

// AttitudeDegrees returns the current attitude scaled by 180/π.
func (a *AttitudeIntegrator) AttitudeDegrees() Pose {
	return Pose{
		Roll:  a.attitude.Roll * 180 / math.Pi,
		Pitch: a.attitude.Pitch * 180 / math.Pi,
		Yaw:   a.attitude.Yaw * 180 / math.Pi,
	}
}

// Position returns the current tilt-driven position.
func (a *AttitudeIntegrator) Position() Position { return a.position }

// TiltToPosition moves the position from an attitude in degrees. Below the
// dead zone nothing changes. Pitch drives x and negated yaw drives y; the
// cross mapping matches how the sensor sits on the hand and must stay.
func (a *AttitudeIntegrator) TiltToPosition(deg Pose, dt float64) {
	if math.Hypot(deg.Roll, deg.Pitch) < DeadZoneDeg {
		return
	}
	a.position.X = clip(a.position.X+deg.Pitch*a.sensitivity*dt, 1)
	a.position.Y = clip(a.position.Y-deg.Yaw*a.sensitivity*dt, 1)
	a.position.Z = clip(a.position.Z, 1)
}

// Update runs one poll tick for s: derives dt from the sample timestamps
// (the nominal poll interval on the first call or when time does not
// advance), integrates the gyro and applies the tilt mapping.
func (a *AttitudeIntegrator) Update(s imu.Sample) (Pose, error) {
	dt := a.nominalDt
	if a.haveLast && s.Timestamp > a.lastTimestamp {
		dt = float64(s.Timestamp-a.lastTimestamp) / 1e6
	}
	if err := a.Integrate(s.Gyro, dt); err != nil {
		return Pose{}, err
	}
	a.lastTimestamp = s.Timestamp
	a.haveLast = true

	deg := a.AttitudeDegrees()
	a.TiltToPosition(deg, dt)
	return deg, nil
}

func clip(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
