package camera

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-msgcam/logger"
	"github.com/arloliu/go-msgcam/msg"
)

// Default values for camera operation.
const (
	DefaultPort = 6868

	DefaultPollInterval   = 500 * time.Millisecond
	DefaultExposeMargin   = 30 * time.Second // added to the exposure time when waiting for Exposed
	DefaultReadoutTimeout = 60 * time.Second
	DefaultAbortTimeout   = 30 * time.Second
	DefaultConnectTimeout = 3 * time.Second
	DefaultReplyTimeout   = msg.DefaultReplyTimeout

	// DefaultMaxBytes is the largest frame the F/5 WFS camera produces.
	DefaultMaxBytes = 1322240
)

// CCDInfo describes the sensor geometry of a camera.
type CCDInfo struct {
	Width        int     // pixels
	Height       int     // pixels
	PixelSize    float64 // microns
	BitsPerPixel int
}

// DefaultCCDInfo is the sensor of the F/5 WFS camera.
var DefaultCCDInfo = CCDInfo{Width: 512, Height: 512, PixelSize: 20, BitsPerPixel: 16}

// Validate reports whether every field is positive.
func (c CCDInfo) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("camera: ccd size %dx%d must be positive", c.Width, c.Height)
	}
	if !(c.PixelSize > 0) {
		return fmt.Errorf("camera: ccd pixel size %v must be positive", c.PixelSize)
	}
	switch c.BitsPerPixel {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("camera: ccd bits per pixel %d not one of 8, 16, 32, 64", c.BitsPerPixel)
	}

	return nil
}

func (c CCDInfo) String() string {
	return fmt.Sprintf("%dx%d px, %g um, %d bpp", c.Width, c.Height, c.PixelSize, c.BitsPerPixel)
}

// Range limits for poll intervals and timeouts.
const (
	MinPollInterval = time.Millisecond
	MaxPollInterval = 10 * time.Second

	MinTimeout = 10 * time.Millisecond
	MaxTimeout = time.Hour
)

// Config holds the configuration for a Camera.
type Config struct {
	host string
	port int

	pollInterval   time.Duration
	exposeMargin   time.Duration
	readoutTimeout time.Duration
	abortTimeout   time.Duration
	connectTimeout time.Duration
	replyTimeout   time.Duration

	transferMode TransferMode
	maxBytes     int
	ccd          CCDInfo

	enricher Enricher
	logger   logger.Logger
}

// NewConfig creates a camera configuration for the MSG server at host:port.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(host string, port int, opts ...Option) (*Config, error) {
	cfg := &Config{
		pollInterval:   DefaultPollInterval,
		exposeMargin:   DefaultExposeMargin,
		readoutTimeout: DefaultReadoutTimeout,
		abortTimeout:   DefaultAbortTimeout,
		connectTimeout: DefaultConnectTimeout,
		replyTimeout:   DefaultReplyTimeout,
		transferMode:   TransferProbe,
		maxBytes:       DefaultMaxBytes,
		ccd:            DefaultCCDInfo,
		logger:         logger.GetLogger(),
	}

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *Config) setHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" || strings.ContainsAny(host, " \t/") {
		return fmt.Errorf("camera: invalid host %q", host)
	}
	cfg.host = host

	return nil
}

func (cfg *Config) setPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("camera: port %d out of range [1, 65535]", port)
	}
	cfg.port = port

	return nil
}

// Host returns the configured host.
func (cfg *Config) Host() string { return cfg.host }

// Port returns the configured TCP port.
func (cfg *Config) Port() int { return cfg.port }

// Addr returns "host:port".
func (cfg *Config) Addr() string { return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port)) }

// PollInterval returns the delay between two state queries.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// ExposeMargin returns the extra time allowed beyond the exposure time.
func (cfg *Config) ExposeMargin() time.Duration { return cfg.exposeMargin }

// ReadoutTimeout returns the bound on waiting for the Read state.
func (cfg *Config) ReadoutTimeout() time.Duration { return cfg.readoutTimeout }

// AbortTimeout returns the bound on waiting for Idle after abort.
func (cfg *Config) AbortTimeout() time.Duration { return cfg.abortTimeout }

// ConnectTimeout returns the TCP dial timeout.
func (cfg *Config) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// ReplyTimeout returns the bound on a single command round-trip.
func (cfg *Config) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// TransferMode returns the bulk transfer variant.
func (cfg *Config) TransferMode() TransferMode { return cfg.transferMode }

// MaxBytes returns the default maximum expected frame size.
func (cfg *Config) MaxBytes() int { return cfg.maxBytes }

// CCDInfo returns the sensor geometry.
func (cfg *Config) CCDInfo() CCDInfo { return cfg.ccd }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithPollInterval sets the delay between two state queries.
// The valid range is [MinPollInterval, MaxPollInterval].
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("camera: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithExposeMargin sets the time allowed beyond the exposure time for the
// camera to reach Exposed.
func WithExposeMargin(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("expose margin", d); err != nil {
			return err
		}
		cfg.exposeMargin = d

		return nil
	})
}

// WithReadoutTimeout sets the bound on waiting for the Read state.
func WithReadoutTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("readout timeout", d); err != nil {
			return err
		}
		cfg.readoutTimeout = d

		return nil
	})
}

// WithAbortTimeout sets the bound on waiting for Idle after abort.
func WithAbortTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("abort timeout", d); err != nil {
			return err
		}
		cfg.abortTimeout = d

		return nil
	})
}

// WithConnectTimeout sets the TCP dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("connect timeout", d); err != nil {
			return err
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithReplyTimeout sets the bound on a single command round-trip.
func WithReplyTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("reply timeout", d); err != nil {
			return err
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithTransferMode selects the bulk transfer variant.
func WithTransferMode(mode TransferMode) Option {
	return optFunc(func(cfg *Config) error {
		if mode != TransferProbe && mode != TransferNegotiated {
			return fmt.Errorf("camera: unknown transfer mode %d", mode)
		}
		cfg.transferMode = mode

		return nil
	})
}

// WithMaxBytes sets the default maximum expected frame size.
func WithMaxBytes(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 {
			return errors.New("camera: max bytes must be positive")
		}
		cfg.maxBytes = n

		return nil
	})
}

// WithCCDInfo sets the sensor geometry reported for the camera.
func WithCCDInfo(info CCDInfo) Option {
	return optFunc(func(cfg *Config) error {
		if err := info.Validate(); err != nil {
			return err
		}
		cfg.ccd = info

		return nil
	})
}

// WithEnricher sets the header enricher applied to every captured image.
func WithEnricher(e Enricher) Option {
	return optFunc(func(cfg *Config) error {
		cfg.enricher = e
		return nil
	})
}

// WithLogger sets the logger for the camera.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("camera: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

func checkTimeout(name string, d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("camera: %s %v out of range [%v, %v]", name, d, MinTimeout, MaxTimeout)
	}

	return nil
}
