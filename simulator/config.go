package simulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-msgcam/logger"
)

// Default simulator settings.
const (
	DefaultWidth        = 128
	DefaultHeight       = 128
	DefaultReadoutDelay = 500 * time.Millisecond
	DefaultAmbientTemp  = 20.0
	DefaultSetpoint     = -15
)

type config struct {
	width        int
	height       int
	readoutDelay time.Duration
	timeScale    float64
	ambient      float64
	setpoint     int
	logger       logger.Logger
}

func defaultConfig() *config {
	return &config{
		width:        DefaultWidth,
		height:       DefaultHeight,
		readoutDelay: DefaultReadoutDelay,
		timeScale:    1,
		ambient:      DefaultAmbientTemp,
		setpoint:     DefaultSetpoint,
		logger:       logger.GetLogger(),
	}
}

// Option configures a simulated device and server.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithFrameSize sets the simulated CCD size in pixels.
func WithFrameSize(width, height int) Option {
	return optFunc(func(cfg *config) error {
		if width < 1 || height < 1 || width > 8192 || height > 8192 {
			return fmt.Errorf("simulator: frame size %dx%d out of range [1, 8192]", width, height)
		}
		cfg.width, cfg.height = width, height

		return nil
	})
}

// WithReadoutDelay sets the time spent in Reading.
func WithReadoutDelay(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 {
			return errors.New("simulator: readout delay must not be negative")
		}
		cfg.readoutDelay = d

		return nil
	})
}

// WithTimeScale scales simulated exposure times; 0.01 turns a 5 s exposure
// into 50 ms of wall time.
func WithTimeScale(scale float64) Option {
	return optFunc(func(cfg *config) error {
		if !(scale > 0) || scale > 1 {
			return fmt.Errorf("simulator: time scale %v out of range (0, 1]", scale)
		}
		cfg.timeScale = scale

		return nil
	})
}

// WithSetpoint sets the initial cooler set-point in degrees Celsius.
func WithSetpoint(c int) Option {
	return optFunc(func(cfg *config) error {
		if c < -100 || c > 30 {
			return fmt.Errorf("simulator: setpoint %d out of range [-100, 30]", c)
		}
		cfg.setpoint = c

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("simulator: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

func newConfig(opts []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
