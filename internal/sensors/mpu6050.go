package sensors

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/inertial_mouse/internal/imu"
)

// MPU-6050 register map subset.
const (
	regGyroConfig  = 0x1B // GYRO_CONFIG, FS_SEL in bits 4:3
	regAccelConfig = 0x1C // ACCEL_CONFIG, AFS_SEL in bits 4:3
	regAccelXOutH  = 0x3B // ACCEL_XOUT_H, start of the 14-byte data block
	regPwrMgmt1    = 0x6B // PWR_MGMT_1
	regWhoAmI      = 0x75

	// wake from sleep, clock from the X gyro PLL
	pwrClockPLLX = 0x01
	mpu6050ID    = 0x68
)

// LSB per unit for each full-scale setting.
var (
	accelLSBPerG   = [4]float64{16384, 8192, 4096, 2048}
	gyroLSBPerDegS = [4]float64{131, 65.5, 32.8, 16.4}
)

// MPU6050 reads accelerometer and gyroscope from an MPU-6050 on I2C.
type MPU6050 struct {
	name     string
	dev      *i2c.Dev
	interval time.Duration
	accelLSB float64
	gyroLSB  float64
	start    time.Time
	now      func() time.Time
	buf      [14]byte
}

// NewMPU6050 wakes the sensor at addr and applies the full-scale ranges.
// The bus channel the sensor sits on must already be selected.
func NewMPU6050(bus i2c.Bus, addr uint16, name string, accelRange, gyroRange byte, interval time.Duration) (*MPU6050, error) {
	if accelRange > 3 || gyroRange > 3 {
		return nil, fmt.Errorf("%s IMU: range out of 0-3 (accel %d, gyro %d)", name, accelRange, gyroRange)
	}
	m := &MPU6050{
		name:     name,
		dev:      &i2c.Dev{Bus: bus, Addr: addr},
		interval: interval,
		accelLSB: accelLSBPerG[accelRange],
		gyroLSB:  gyroLSBPerDegS[gyroRange],
		now:      time.Now,
	}

	writes := [][]byte{
		{regPwrMgmt1, pwrClockPLLX},
		{regGyroConfig, gyroRange << 3},
		{regAccelConfig, accelRange << 3},
	}
	for _, w := range writes {
		if err := m.dev.Tx(w, nil); err != nil {
			return nil, &HardwareError{Op: fmt.Sprintf("init register 0x%02X", w[0]), Device: name + " IMU", Err: err}
		}
	}
	log.Printf("%s IMU: accelerometer range set to %d (±%dg)", name, accelRange, []int{2, 4, 8, 16}[accelRange])
	log.Printf("%s IMU: gyroscope range set to %d (±%d°/s)", name, gyroRange, []int{250, 500, 1000, 2000}[gyroRange])

	id := make([]byte, 1)
	if err := m.dev.Tx([]byte{regWhoAmI}, id); err != nil {
		return nil, &HardwareError{Op: "read WHO_AM_I", Device: name + " IMU", Err: err}
	}
	if id[0] != mpu6050ID {
		log.Warnf("%s IMU: unexpected WHO_AM_I 0x%02X, continuing", name, id[0])
	}

	m.start = m.now()
	return m, nil
}

func (m *MPU6050) Read() (imu.Sample, error) {
	if err := m.dev.Tx([]byte{regAccelXOutH}, m.buf[:]); err != nil {
		return imu.Sample{}, &HardwareError{Op: "read", Device: m.name + " IMU", Err: err}
	}
	word := func(i int) float64 {
		return float64(int16(uint16(m.buf[i])<<8 | uint16(m.buf[i+1])))
	}

	s := imu.Sample{
		Source:    m.name,
		Timestamp: m.now().Sub(m.start).Microseconds(),
	}
	for axis := 0; axis < 3; axis++ {
		s.Accel[axis] = word(2*axis) / m.accelLSB * imu.StandardGravity
		// bytes 6-7 hold the die temperature
		s.Gyro[axis] = word(8+2*axis) / m.gyroLSB * math.Pi / 180
	}
	return s, nil
}

func (m *MPU6050) PollInterval() time.Duration { return m.interval }

// Close puts the sensor back to sleep.
func (m *MPU6050) Close() error {
	return m.dev.Tx([]byte{regPwrMgmt1, 0x40}, nil)
}
