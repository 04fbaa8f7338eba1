package camera

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/arloliu/go-msgcam/logger"
	"github.com/arloliu/go-msgcam/msg"
)

// Keys understood by "get".
const (
	keyTemperature = "temp"
	keySetpoint    = "setp"
	keyState       = "state"
	keyTimer       = "timer"
)

// Enricher adds externally sourced metadata to a captured image header.
type Enricher interface {
	Enrich(ctx context.Context, img *Image) error
}

// Camera drives one MSG camera server over an exclusively owned channel.
//
// The device is the only authority on the camera state: every operation that
// depends on the state queries it, nothing is cached between calls. A Camera
// must not be used from more than one goroutine at a time; overlapping calls
// fail with msg.ErrBusy.
type Camera struct {
	ch      *msg.Channel
	cfg     *Config
	logger  logger.Logger
	metrics CameraMetrics
}

// New creates a Camera on an established channel. The camera takes ownership
// of ch and closes it on Close.
func New(ch *msg.Channel, cfg *Config) (*Camera, error) {
	if ch == nil {
		return nil, errors.New("camera: channel is nil")
	}
	if cfg == nil {
		return nil, errors.New("camera: config is nil")
	}

	return &Camera{
		ch:     ch,
		cfg:    cfg,
		logger: cfg.logger,
	}, nil
}

// Connect dials the camera server, builds the channel and queries the
// initial camera state.
func Connect(ctx context.Context, cfg *Config) (*Camera, error) {
	if cfg == nil {
		return nil, errors.New("camera: config is nil")
	}

	t, err := msg.Dial(ctx, cfg.Addr(), cfg.connectTimeout)
	if err != nil {
		return nil, err
	}

	ch, err := msg.NewChannel(t,
		msg.WithLogger(cfg.logger),
		msg.WithReplyTimeout(cfg.replyTimeout),
	)
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	cam, err := New(ch, cfg)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	state, err := cam.State(ctx)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("camera: query initial state: %w", err)
	}
	cam.logger.Info("camera: connected", "addr", cfg.Addr(), "state", state)

	return cam, nil
}

// Close closes the underlying channel.
func (c *Camera) Close() error {
	c.logger.Debug("camera: disconnect", "addr", c.cfg.Addr())
	return c.ch.Close()
}

// Connected reports whether the camera's channel is still open.
func (c *Camera) Connected() bool { return !c.ch.IsClosed() }

// Config returns the camera configuration.
func (c *Camera) Config() *Config { return c.cfg }

// GetLogger returns the logger associated with the camera.
func (c *Camera) GetLogger() logger.Logger { return c.logger }

// GetMetrics returns the metrics associated with the camera.
func (c *Camera) GetMetrics() *CameraMetrics { return &c.metrics }

// Channel returns the underlying channel.
func (c *Camera) Channel() *msg.Channel { return c.ch }

// Temperature returns the CCD temperature in degrees Celsius.
func (c *Camera) Temperature(ctx context.Context) (float64, error) {
	v, err := c.ch.Get(ctx, keyTemperature)
	if err != nil {
		return 0, err
	}

	temp, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: temperature %q", ErrParse, v)
	}

	return temp, nil
}

// Setpoint returns the cooler set-point in degrees Celsius.
func (c *Camera) Setpoint(ctx context.Context) (int, error) {
	v, err := c.ch.Get(ctx, keySetpoint)
	if err != nil {
		return 0, err
	}

	setp, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: setpoint %q", ErrParse, v)
	}

	return setp, nil
}

// State queries the current camera state.
func (c *Camera) State(ctx context.Context) (State, error) {
	v, err := c.ch.Get(ctx, keyState)
	if err != nil {
		return UnknownState, err
	}

	return ParseState(v)
}

// Timer returns the device exposure timer.
func (c *Camera) Timer(ctx context.Context) (int, error) {
	v, err := c.ch.Get(ctx, keyTimer)
	if err != nil {
		return 0, err
	}

	timer, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: timer %q", ErrParse, v)
	}

	return timer, nil
}

// SetCooler switches the CCD cooler. It is refused with ErrInvalidState while
// the camera is exposing.
func (c *Camera) SetCooler(ctx context.Context, state CoolerState) (bool, error) {
	if state != CoolerOff && state != CoolerOn {
		return false, fmt.Errorf("%w: cooler state %d", ErrInvalidRequest, state)
	}

	cur, err := c.State(ctx)
	if err != nil {
		return false, err
	}
	if cur == Exposing {
		return false, fmt.Errorf("%w: cooler toggle while %s", ErrInvalidState, cur)
	}

	ok, err := c.ch.Run(ctx, "cooler", int(state))
	if err != nil {
		return false, err
	}
	c.logger.Info("camera: set cooler", "cooler", state, "ok", ok)

	return ok, nil
}

// Idle returns the camera to the Idle state. Idle is immediate, so there is no polling.
func (c *Camera) Idle(ctx context.Context) (bool, error) {
	return c.ch.Run(ctx, "idle")
}

// Readout starts reading out the last exposure. It does not wait for Read.
func (c *Camera) Readout(ctx context.Context) (bool, error) {
	return c.ch.Run(ctx, "readout")
}

// Abort cancels the current exposure and waits, bounded by the abort timeout,
// until the camera reports Idle.
func (c *Camera) Abort(ctx context.Context) (bool, error) {
	c.logger.Debug("camera: sending abort command")

	ok, err := c.ch.Run(ctx, "abort")
	if err != nil {
		return false, err
	}
	if !ok {
		c.logger.Error("camera: problem sending abort command")
		return false, nil
	}

	if err := c.WaitState(ctx, Idle, c.cfg.abortTimeout); err != nil {
		return false, err
	}
	c.logger.Info("camera: abort complete, camera idle")

	return true, nil
}

// Expose starts an exposure of the given type and length in seconds and
// waits until the camera reports Exposed.
//
// When the device refuses the command, the camera is returned to Idle and
// Expose reports false without polling.
func (c *Camera) Expose(ctx context.Context, typ ExposureType, seconds float64) (bool, error) {
	if !typ.valid() {
		return false, fmt.Errorf("%w: exposure type %d", ErrInvalidRequest, typ)
	}
	if !(seconds > 0) {
		return false, fmt.Errorf("%w: exposure time %v must be positive", ErrInvalidRequest, seconds)
	}

	c.logger.Debug("camera: start exposure", "type", typ, "seconds", seconds)

	ok, err := c.ch.Run(ctx, "expose", 0, typ.String(), seconds)
	if err != nil {
		return false, err
	}
	if !ok {
		c.logger.Error("camera: exposure command failed", "type", typ, "seconds", seconds)
		if _, err := c.Idle(ctx); err != nil {
			return false, err
		}

		return false, nil
	}

	if err := c.WaitState(ctx, Exposed, secondsToDuration(seconds)+c.cfg.exposeMargin); err != nil {
		return false, err
	}

	return true, nil
}
