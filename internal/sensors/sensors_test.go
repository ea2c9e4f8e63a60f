package sensors

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/relabs-tech/inertial_mouse/internal/config"
	"github.com/relabs-tech/inertial_mouse/internal/imu"
)

func TestMuxSelectsAndReleases(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x70, W: []byte{0x04}},
		{Addr: 0x70, W: []byte{0x00}},
	}}
	m := NewMux(bus, 0x70)

	release, err := m.Acquire(2)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	if err := bus.Close(); err != nil {
		t.Fatalf("unplayed bus ops: %v", err)
	}
}

func TestMuxRejectsBadChannel(t *testing.T) {
	m := NewMux(&i2ctest.Playback{}, 0x70)
	if _, err := m.Acquire(8); err == nil {
		t.Fatal("Acquire(8) succeeded")
	}
	// the failed acquire must not leave the bus locked
	if !m.mu.TryLock() {
		t.Fatal("mux left locked after a rejected channel")
	}
	m.mu.Unlock()
}

// countingSource records how many reads overlap.
type countingSource struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (c *countingSource) Read() (imu.Sample, error) {
	c.mu.Lock()
	c.active++
	if c.active > c.maxSeen {
		c.maxSeen = c.active
	}
	c.mu.Unlock()

	time.Sleep(time.Millisecond)

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return imu.Sample{}, nil
}

func (c *countingSource) PollInterval() time.Duration { return 10 * time.Millisecond }
func (c *countingSource) Close() error                { return nil }

func TestChannelReadsAreSerialized(t *testing.T) {
	shared := &countingSource{}
	sel := &NoMux{}
	left := OnChannel(sel, 0, "left", shared)
	right := OnChannel(sel, 1, "right", shared)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, src := range []imu.Source{left, right} {
			wg.Add(1)
			go func(src imu.Source) {
				defer wg.Done()
				if _, err := src.Read(); err != nil {
					t.Errorf("Read: %v", err)
				}
			}(src)
		}
	}
	wg.Wait()
	if shared.maxSeen != 1 {
		t.Fatalf("%d reads overlapped on the bus", shared.maxSeen)
	}
}

func TestSelectFailureIsHardwareError(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	src := OnChannel(NewMux(bus, 0x70), 3, "right", &countingSource{})

	_, err := src.Read()
	var hw *HardwareError
	if !errors.As(err, &hw) {
		t.Fatalf("Read error = %v, want *HardwareError", err)
	}
	if hw.Op != "select" || hw.Device != "right IMU" {
		t.Errorf("HardwareError = %+v", hw)
	}
}

func mpu6050Init(accelRange, gyroRange byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: 0x68, W: []byte{regPwrMgmt1, pwrClockPLLX}},
		{Addr: 0x68, W: []byte{regGyroConfig, gyroRange << 3}},
		{Addr: 0x68, W: []byte{regAccelConfig, accelRange << 3}},
		{Addr: 0x68, W: []byte{regWhoAmI}, R: []byte{mpu6050ID}},
	}
}

func TestMPU6050ReadScalesToSI(t *testing.T) {
	ops := mpu6050Init(1, 1)
	ops = append(ops, i2ctest.IO{
		Addr: 0x68,
		W:    []byte{regAccelXOutH},
		R: []byte{
			0x20, 0x00, // ax = 8192 = 1 g at ±4g
			0xE0, 0x00, // ay = -8192
			0x00, 0x00, // az
			0x00, 0x00, // temperature
			0x02, 0x8F, // gx = 655 = 10°/s at ±500°/s
			0x00, 0x00,
			0xFD, 0x71, // gz = -655
		},
	})
	bus := &i2ctest.Playback{Ops: ops}

	dev, err := NewMPU6050(bus, 0x68, "left", 1, 1, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewMPU6050: %v", err)
	}
	s, err := dev.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("unplayed bus ops: %v", err)
	}

	if s.Source != "left" {
		t.Errorf("Source = %q", s.Source)
	}
	if math.Abs(s.Accel[0]-imu.StandardGravity) > 1e-9 || math.Abs(s.Accel[1]+imu.StandardGravity) > 1e-9 || s.Accel[2] != 0 {
		t.Errorf("Accel = %v", s.Accel)
	}
	want := 10 * math.Pi / 180
	if math.Abs(s.Gyro[0]-want) > 1e-9 || s.Gyro[1] != 0 || math.Abs(s.Gyro[2]+want) > 1e-9 {
		t.Errorf("Gyro = %v, want ±%g rad/s on x and z", s.Gyro, want)
	}
	if dev.PollInterval() != 10*time.Millisecond {
		t.Errorf("PollInterval = %v", dev.PollInterval())
	}
}

func TestMPU6050ReadFailure(t *testing.T) {
	bus := &i2ctest.Playback{Ops: mpu6050Init(0, 0), DontPanic: true}
	dev, err := NewMPU6050(bus, 0x68, "left", 0, 0, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewMPU6050: %v", err)
	}
	// no further ops scripted: the read transaction fails
	_, err = dev.Read()
	var hw *HardwareError
	if !errors.As(err, &hw) || hw.Op != "read" {
		t.Fatalf("Read error = %v, want read HardwareError", err)
	}
}

func TestMPU6050RejectsBadRange(t *testing.T) {
	if _, err := NewMPU6050(&i2ctest.Playback{}, 0x68, "left", 4, 0, time.Millisecond); err == nil {
		t.Fatal("accel range 4 accepted")
	}
}

func TestGPIOLevelsActiveLow(t *testing.T) {
	p17 := &gpiotest.Pin{N: "GPIO17", Num: 17}
	p22 := &gpiotest.Pin{N: "GPIO22", Num: 22}
	levels, err := NewGPIOLevels(map[string]gpio.PinIn{"17": p17, "22": p22})
	if err != nil {
		t.Fatalf("NewGPIOLevels: %v", err)
	}
	if p17.P != gpio.PullUp || p22.P != gpio.PullUp {
		t.Fatalf("pins not pulled up: %v %v", p17.P, p22.P)
	}

	p22.L = gpio.Low // button held
	got, err := levels.ReadLevels([]string{"17", "22"})
	if err != nil {
		t.Fatalf("ReadLevels: %v", err)
	}
	if got["17"] || !got["22"] {
		t.Errorf("levels = %v, want 22 active only", got)
	}

	if _, err := levels.ReadLevels([]string{"23"}); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestOpenMockRig(t *testing.T) {
	cfg := config.Default()
	cfg.SensorChannels = []int{0, 1}
	rig, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rig.Close()

	if len(rig.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(rig.Sources))
	}
	if rig.Buttons != nil {
		t.Error("mock rig should have no button capability")
	}
	s, err := rig.Sources[1].Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if s.Source != "right" {
		t.Errorf("second channel named %q, want right", s.Source)
	}
}

func TestOpenMPU9250NeedsOneChannel(t *testing.T) {
	cfg := config.Default()
	cfg.SensorDriver = "mpu9250"
	cfg.SensorChannels = []int{0, 1}
	if _, err := Open(cfg); err == nil {
		t.Fatal("Open succeeded with two SPI channels")
	}
}

func TestNewMPU9250RejectsBadSetup(t *testing.T) {
	if _, err := NewMPU9250("left", "/dev/spidev0.0", "8", 4, 1, 10*time.Millisecond); err == nil {
		t.Error("accel range 4 accepted")
	}
	_, err := NewMPU9250("left", "/dev/spidev0.0", "NO_SUCH_PIN", 1, 1, 10*time.Millisecond)
	if err == nil {
		t.Fatal("unknown CS pin accepted")
	}
	if !strings.Contains(err.Error(), "NO_SUCH_PIN") {
		t.Errorf("error %q does not name the pin", err)
	}
}
