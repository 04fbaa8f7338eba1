package camera

import (
	"context"
	"fmt"
	"math"
	"time"
)

// ExposureRequest describes one exposure. It is not modified by Capture.
type ExposureRequest struct {
	Type ExposureType
	// Duration is the exposure time in seconds.
	Duration float64
	// MaxBytes is the largest frame the caller expects. Zero selects the
	// configured default.
	MaxBytes int
}

// Validate checks the request fields.
func (r ExposureRequest) Validate() error {
	if !r.Type.valid() {
		return fmt.Errorf("%w: exposure type %d", ErrInvalidRequest, r.Type)
	}
	if !(r.Duration > 0) || math.IsInf(r.Duration, 0) {
		return fmt.Errorf("%w: exposure time %v must be positive", ErrInvalidRequest, r.Duration)
	}
	if r.MaxBytes < 1 {
		return fmt.Errorf("%w: max bytes %d must be positive", ErrInvalidRequest, r.MaxBytes)
	}

	return nil
}

// Capture runs one full exposure: expose, readout, wait for Read, transfer,
// header stamping and a final idle.
//
// A refused expose command returns ErrExposureCommandFailed; the camera was
// already idled by Expose. Every other failure is followed by a best-effort
// idle whose own failure is only logged. Step failures match
// ErrReadoutCommandFailed or ErrTransferFailed; transport, protocol, timeout
// and parse errors are returned as they are.
func (c *Camera) Capture(ctx context.Context, req ExposureRequest) (*Image, error) {
	if req.MaxBytes == 0 {
		req.MaxBytes = c.cfg.maxBytes
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	c.logger.Info("camera: capture start", "type", req.Type, "seconds", req.Duration, "max_bytes", req.MaxBytes)

	ok, err := c.Expose(ctx, req.Type, req.Duration)
	if err != nil {
		return nil, c.abandon(ctx, "expose", err)
	}
	if !ok {
		c.metrics.incCaptureErrCount()
		return nil, fmt.Errorf("%w: %s exposure of %vs", ErrExposureCommandFailed, req.Type, req.Duration)
	}

	ok, err = c.Readout(ctx)
	if err != nil {
		return nil, c.abandon(ctx, "readout", err)
	}
	if !ok {
		return nil, c.abandon(ctx, "readout", ErrReadoutCommandFailed)
	}

	if err := c.WaitState(ctx, Read, c.cfg.readoutTimeout); err != nil {
		return nil, c.abandon(ctx, "wait read", err)
	}

	img, err := c.Transfer(ctx, req.MaxBytes)
	if err != nil {
		return nil, c.abandon(ctx, "transfer", err)
	}

	if err := c.stamp(ctx, img); err != nil {
		return nil, c.abandon(ctx, "stamp header", err)
	}

	if c.cfg.enricher != nil {
		if err := c.cfg.enricher.Enrich(ctx, img); err != nil {
			c.logger.Warn("camera: header enrichment failed", "error", err)
		}
	}

	ok, err = c.Idle(ctx)
	if err != nil {
		c.metrics.incCaptureErrCount()
		return nil, err
	}
	if !ok {
		c.logger.Warn("camera: idle refused after capture")
	}

	c.metrics.incCaptureCount()
	c.logger.Info("camera: capture done", "bytes", len(img.Pixels), "axes", img.Axes, "elapsed", time.Since(start))

	return img, nil
}

func (c *Camera) stamp(ctx context.Context, img *Image) error {
	temp, err := c.Temperature(ctx)
	if err != nil {
		return err
	}
	setp, err := c.Setpoint(ctx)
	if err != nil {
		return err
	}

	img.Temperature = temp
	img.Setpoint = setp
	img.SetCard(KeyCamTemp, temp, "Camera temperature (C)")
	img.SetCard(KeyCamSetp, setp, "Camera temperature setpoint (C)")

	return nil
}

// abandon returns the camera to Idle after a failed step and passes cause through.
// The cleanup gets its own reply bound so it still runs when ctx is done.
func (c *Camera) abandon(ctx context.Context, step string, cause error) error {
	c.metrics.incCaptureErrCount()
	c.logger.Error("camera: capture failed", "step", step, "error", cause)

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.replyTimeout)
	defer cancel()

	ok, err := c.Idle(cleanupCtx)
	switch {
	case err != nil:
		c.metrics.incCleanupErrCount()
		c.logger.Warn("camera: idle after failed capture", "error", err)
	case !ok:
		c.metrics.incCleanupErrCount()
		c.logger.Warn("camera: idle refused after failed capture")
	}

	return cause
}
