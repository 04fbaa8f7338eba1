package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/arloliu/go-msgcam/camera"
	"github.com/arloliu/go-msgcam/config"
)

func dispatch(ctx context.Context, cam *camera.Camera, preset *config.Preset, args []string, stdout, stderr io.Writer) error {
	switch args[0] {
	case "status":
		return status(ctx, cam, stdout)
	case "expose":
		return expose(ctx, cam, preset, args[1:], stdout, stderr)
	case "abort":
		ok, err := cam.Abort(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("abort refused by camera")
		}
		fmt.Fprintln(stdout, "aborted, camera idle")
		return nil
	case "cooler":
		if len(args) != 2 {
			return fmt.Errorf("%w: cooler on|off", errUsage)
		}
		state, err := camera.ParseCoolerState(args[1])
		if err != nil {
			return err
		}
		ok, err := cam.SetCooler(ctx, state)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cooler %s refused by camera", strings.ToLower(state.String()))
		}
		fmt.Fprintf(stdout, "cooler %s\n", strings.ToLower(state.String()))
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func status(ctx context.Context, cam *camera.Camera, w io.Writer) error {
	state, err := cam.State(ctx)
	if err != nil {
		return err
	}
	temp, err := cam.Temperature(ctx)
	if err != nil {
		return err
	}
	setp, err := cam.Setpoint(ctx)
	if err != nil {
		return err
	}
	timer, err := cam.Timer(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "camera:      %s\n", cam.Config().Addr())
	fmt.Fprintf(w, "state:       %s\n", state)
	fmt.Fprintf(w, "temperature: %.1f C\n", temp)
	fmt.Fprintf(w, "setpoint:    %d C\n", setp)
	fmt.Fprintf(w, "timer:       %d\n", timer)
	fmt.Fprintf(w, "ccd:         %s\n", cam.Config().CCDInfo())

	return nil
}

func expose(ctx context.Context, cam *camera.Camera, preset *config.Preset, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("expose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	typName := fs.String("type", "light", "light or dark")
	exptime := fs.Float64("exptime", 0, "exposure time in seconds (default from preset)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	typ, err := camera.ParseExposureType(*typName)
	if err != nil {
		return err
	}

	img, err := cam.Capture(ctx, preset.Request(typ, *exptime))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "captured %s frame: bitpix %d, axes %v, %d bytes\n", typ, img.Bitpix, img.Axes, len(img.Pixels))
	fmt.Fprintf(stdout, "CAMTEMP = %.1f, CAMSETP = %d\n", img.Temperature, img.Setpoint)
	for _, c := range img.Header {
		fmt.Fprintf(stdout, "  %-8s = %v\n", c.Key, c.Value)
	}

	return nil
}
