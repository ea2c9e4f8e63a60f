// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config holds all application configuration values.
type Config struct {
	// Transport
	Transport      string // "stream", "datagram" or "mqtt"
	PayloadCodec   string // "json" or "cbor"
	RemoteAddr     string // sender: datagram target; receiver: stream dial target
	ListenAddr     string // datagram bind / stream listen address
	StreamMedium   string // "tcp" or "serial"
	SerialPort     string
	SerialBaudRate int
	ReceiveTimeout int // milliseconds
	MaxFrameSize   int // bytes

	// MQTT
	MQTTBroker           string
	MQTTClientIDSender   string
	MQTTClientIDReceiver string
	MQTTClientIDConsole  string
	TopicTelemetry       string

	// Sensors
	SensorDriver   string // "mock", "mpu6050" or "mpu9250"
	SensorChannels []int  // multiplexer channel per sensor; first is left/primary
	I2CBus         string
	MuxI2CAddr     uint16 // 0 disables the bus-channel selector
	MPUI2CAddr     uint16
	MPUSPIDevice   string
	MPUCSPin       string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange       byte
	SensorPollInterval int // milliseconds

	// Attitude
	TiltSensitivity float64

	// Tap detection
	TapWindow          int
	TapOverlap         float64
	TapLowCut          float64 // Hz
	TapHighCut         float64 // Hz
	TapEnergyBandLow   float64 // Hz
	TapEnergyBandHigh  float64 // Hz
	TapEnergyThreshold float64
	TapPeakThreshold   float64
	TapDoubleWindow    int // samples

	// Buttons
	ButtonKeys   []string // empty disables the button capability
	ToggleButton string
	HotkeyButton string
	Hotkey       string

	// Receiver
	ScreenWidth      int
	ScreenHeight     int
	ScreenMargin     int
	AttitudeRangeDeg float64
	WebServerPort    int // 0 disables the monitor

	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when a key is absent from the file.
// Tap thresholds are empirically tuned for a finger-worn sensor polled at
// 100 Hz.
func Default() *Config {
	return &Config{
		Transport:      "datagram",
		PayloadCodec:   "json",
		RemoteAddr:     "127.0.0.1:12345",
		ListenAddr:     ":12345",
		StreamMedium:   "tcp",
		SerialPort:     "/dev/rfcomm0",
		SerialBaudRate: 115200,
		ReceiveTimeout: 500,
		MaxFrameSize:   64 * 1024,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDSender:   "inertial-mouse-sender",
		MQTTClientIDReceiver: "inertial-mouse-receiver",
		MQTTClientIDConsole:  "inertial-mouse-console",
		TopicTelemetry:       "inertial/mouse/telemetry",

		SensorDriver:       "mock",
		SensorChannels:     []int{0},
		MuxI2CAddr:         0x70,
		MPUI2CAddr:         0x68,
		MPUSPIDevice:       "/dev/spidev0.0",
		MPUCSPin:           "8",
		IMUAccelRange:      1,
		IMUGyroRange:       1,
		SensorPollInterval: 10,

		TiltSensitivity: 0.01,

		TapWindow:          32,
		TapOverlap:         0.5,
		TapLowCut:          5,
		TapHighCut:         30,
		TapEnergyBandLow:   5,
		TapEnergyBandHigh:  30,
		TapEnergyThreshold: 3,
		TapPeakThreshold:   1,
		TapDoubleWindow:    96,

		ButtonKeys:   []string{"17", "27", "22", "23"},
		ToggleButton: "22",
		HotkeyButton: "17",
		Hotkey:       "r",

		ScreenWidth:      1920,
		ScreenHeight:     1080,
		ScreenMargin:     5,
		AttitudeRangeDeg: 60,

		LogLevel: "info",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Transport
	case "TRANSPORT":
		c.Transport = value
	case "PAYLOAD_CODEC":
		c.PayloadCodec = value
	case "REMOTE_ADDR":
		c.RemoteAddr = value
	case "LISTEN_ADDR":
		c.ListenAddr = value
	case "STREAM_MEDIUM":
		c.StreamMedium = value
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)
	case "RECEIVE_TIMEOUT":
		c.ReceiveTimeout, err = parseInt(key, value)
	case "MAX_FRAME_SIZE":
		c.MaxFrameSize, err = parseInt(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_SENDER":
		c.MQTTClientIDSender = value
	case "MQTT_CLIENT_ID_RECEIVER":
		c.MQTTClientIDReceiver = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value

	// Sensors
	case "SENSOR_DRIVER":
		c.SensorDriver = value
	case "SENSOR_CHANNELS":
		c.SensorChannels = nil
		for _, field := range splitList(value) {
			ch, err := strconv.Atoi(field)
			if err != nil {
				return fmt.Errorf("invalid SENSOR_CHANNELS entry %q: %w", field, err)
			}
			if ch < 0 || ch > 7 {
				return fmt.Errorf("SENSOR_CHANNELS entries must be 0-7, got %d", ch)
			}
			c.SensorChannels = append(c.SensorChannels, ch)
		}
	case "I2C_BUS":
		c.I2CBus = value
	case "MUX_I2C_ADDR":
		c.MuxI2CAddr, err = parseAddr(key, value)
	case "MPU_I2C_ADDR":
		c.MPUI2CAddr, err = parseAddr(key, value)
	case "MPU_SPI_DEVICE":
		c.MPUSPIDevice = value
	case "MPU_CS_PIN":
		c.MPUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "SENSOR_POLL_INTERVAL":
		c.SensorPollInterval, err = parseInt(key, value)

	// Attitude
	case "TILT_SENSITIVITY":
		c.TiltSensitivity, err = parseFloat(key, value)

	// Tap detection
	case "TAP_WINDOW":
		c.TapWindow, err = parseInt(key, value)
	case "TAP_OVERLAP":
		c.TapOverlap, err = parseFloat(key, value)
	case "TAP_LOWCUT":
		c.TapLowCut, err = parseFloat(key, value)
	case "TAP_HIGHCUT":
		c.TapHighCut, err = parseFloat(key, value)
	case "TAP_ENERGY_BAND_LOW":
		c.TapEnergyBandLow, err = parseFloat(key, value)
	case "TAP_ENERGY_BAND_HIGH":
		c.TapEnergyBandHigh, err = parseFloat(key, value)
	case "TAP_ENERGY_THRESHOLD":
		c.TapEnergyThreshold, err = parseFloat(key, value)
	case "TAP_PEAK_THRESHOLD":
		c.TapPeakThreshold, err = parseFloat(key, value)
	case "TAP_DOUBLE_WINDOW":
		c.TapDoubleWindow, err = parseInt(key, value)

	// Buttons
	case "BUTTON_KEYS":
		c.ButtonKeys = splitList(value)
	case "TOGGLE_BUTTON":
		c.ToggleButton = value
	case "HOTKEY_BUTTON":
		c.HotkeyButton = value
	case "HOTKEY":
		c.Hotkey = value

	// Receiver
	case "SCREEN_WIDTH":
		c.ScreenWidth, err = parseInt(key, value)
	case "SCREEN_HEIGHT":
		c.ScreenHeight, err = parseInt(key, value)
	case "SCREEN_MARGIN":
		c.ScreenMargin, err = parseInt(key, value)
	case "ATTITUDE_RANGE_DEG":
		c.AttitudeRangeDeg, err = parseFloat(key, value)
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// Validate checks that the combination of values is usable.
func (c *Config) Validate() error {
	switch c.Transport {
	case "stream", "datagram", "mqtt":
	default:
		return fmt.Errorf("TRANSPORT must be stream, datagram or mqtt, got %q", c.Transport)
	}
	switch c.PayloadCodec {
	case "json", "cbor":
	default:
		return fmt.Errorf("PAYLOAD_CODEC must be json or cbor, got %q", c.PayloadCodec)
	}
	switch c.StreamMedium {
	case "tcp", "serial":
	default:
		return fmt.Errorf("STREAM_MEDIUM must be tcp or serial, got %q", c.StreamMedium)
	}
	switch c.SensorDriver {
	case "mock", "mpu6050", "mpu9250":
	default:
		return fmt.Errorf("SENSOR_DRIVER must be mock, mpu6050 or mpu9250, got %q", c.SensorDriver)
	}
	if len(c.SensorChannels) == 0 || len(c.SensorChannels) > 2 {
		return fmt.Errorf("SENSOR_CHANNELS needs one or two entries, got %d", len(c.SensorChannels))
	}
	if c.Transport == "mqtt" && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.Transport == "stream" && c.StreamMedium == "serial" && c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required")
	}
	if c.SensorPollInterval <= 0 {
		return fmt.Errorf("SENSOR_POLL_INTERVAL must be positive")
	}
	if c.ReceiveTimeout <= 0 {
		return fmt.Errorf("RECEIVE_TIMEOUT must be positive")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("MAX_FRAME_SIZE must be positive")
	}
	if c.TapWindow < 4 {
		return fmt.Errorf("TAP_WINDOW must be at least 4, got %d", c.TapWindow)
	}
	if c.TapOverlap < 0 || c.TapOverlap >= 1 {
		return fmt.Errorf("TAP_OVERLAP must be in [0, 1), got %g", c.TapOverlap)
	}
	if step := int(float64(c.TapWindow) * (1 - c.TapOverlap)); step < 1 {
		return fmt.Errorf("TAP_WINDOW and TAP_OVERLAP give a step of %d samples", step)
	}
	nyquist := 500.0 / float64(c.SensorPollInterval)
	if c.TapLowCut <= 0 || c.TapHighCut <= c.TapLowCut || c.TapHighCut >= nyquist {
		return fmt.Errorf("tap band [%g, %g] Hz must satisfy 0 < low < high < %g Hz", c.TapLowCut, c.TapHighCut, nyquist)
	}
	if c.TapEnergyBandHigh < c.TapEnergyBandLow {
		return fmt.Errorf("TAP_ENERGY_BAND_HIGH must not be below TAP_ENERGY_BAND_LOW")
	}
	if c.ScreenWidth <= 2*c.ScreenMargin || c.ScreenHeight <= 2*c.ScreenMargin {
		return fmt.Errorf("screen %dx%d is too small for margin %d", c.ScreenWidth, c.ScreenHeight, c.ScreenMargin)
	}
	if c.AttitudeRangeDeg <= 0 {
		return fmt.Errorf("ATTITUDE_RANGE_DEG must be positive")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// PollInterval returns SENSOR_POLL_INTERVAL as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.SensorPollInterval) * time.Millisecond
}

// SampleRate returns the nominal sensor sample rate in Hz.
func (c *Config) SampleRate() float64 {
	return 1000.0 / float64(c.SensorPollInterval)
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return uint16(addr), nil
}

func splitList(value string) []string {
	var out []string
	for _, field := range strings.Split(value, ",") {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
