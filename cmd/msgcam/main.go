// Command msgcam controls an MSG camera server from the command line.
//
//	msgcam [flags] status
//	msgcam [flags] expose [-type light|dark] [-exptime seconds]
//	msgcam [flags] abort
//	msgcam [flags] cooler on|off
//
// With -sim an in-process simulator is started and the preset host is ignored.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-msgcam/camera"
	"github.com/arloliu/go-msgcam/config"
	"github.com/arloliu/go-msgcam/header"
	"github.com/arloliu/go-msgcam/logger"
	"github.com/arloliu/go-msgcam/simulator"
)

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "msgcam:", err)
		}
		cancel()
		os.Exit(1)
	}
}

type options struct {
	preset    string
	cfgPath   string
	sim       bool
	host      string
	port      int
	logLevel  string
	logFormat string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("msgcam", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.preset, "preset", "sim", "camera preset: sim, f5wfs, f9wfs, matcam or one defined in -config")
	fs.StringVar(&o.cfgPath, "config", "", "YAML file overriding the built-in presets")
	fs.BoolVar(&o.sim, "sim", false, "start an in-process simulator and connect to it")
	fs.StringVar(&o.host, "host", "", "override the preset host")
	fs.IntVar(&o.port, "port", 0, "override the preset port")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	fs.StringVar(&o.logFormat, "log-format", "slog", "slog or zerolog")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: msgcam [flags] status|expose|abort|cooler on|off")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg, err := loadConfig(o.cfgPath)
	if err != nil {
		return err
	}
	preset, err := cfg.Preset(o.preset)
	if err != nil {
		return err
	}

	log, err := newLogger(o, cfg, stderr)
	if err != nil {
		return err
	}

	host, port := preset.Host, preset.Port
	if o.host != "" {
		host = o.host
	}
	if o.port != 0 {
		port = o.port
	}

	if o.sim {
		simOpts := []simulator.Option{simulator.WithLogger(log), simulator.WithSetpoint(int(preset.RequestedTemp))}
		if !preset.CCD.IsZero() {
			simOpts = append(simOpts, simulator.WithFrameSize(preset.CCD.Width, preset.CCD.Height))
		}
		srv, err := simulator.NewServer(simOpts...)
		if err != nil {
			return err
		}
		if err := srv.Listen(ctx, "127.0.0.1:0"); err != nil {
			return err
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error("simulator stopped", "error", err)
			}
		}()
		defer srv.Close()

		addr, ok := srv.Addr().(*net.TCPAddr)
		if !ok {
			return fmt.Errorf("unexpected simulator address %v", srv.Addr())
		}
		host, port = "127.0.0.1", addr.Port
	}

	camOpts := []camera.Option{camera.WithLogger(log)}
	enricher, closeSrc, err := newEnricher(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Warn("header enrichment disabled", "error", err)
	} else if enricher != nil {
		defer closeSrc()
		camOpts = append(camOpts, camera.WithEnricher(enricher))
	}

	presetOpts, err := preset.CameraOptions()
	if err != nil {
		return err
	}
	camCfg, err := camera.NewConfig(host, port, append(presetOpts, camOpts...)...)
	if err != nil {
		return err
	}

	cam, err := camera.Connect(ctx, camCfg)
	if err != nil {
		return err
	}
	defer cam.Close()

	return dispatch(ctx, cam, preset, fs.Args(), stdout, stderr)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Builtin()
	}

	return config.Load(path)
}

func newLogger(o options, cfg *config.Config, w io.Writer) (logger.Logger, error) {
	level := cfg.Level()
	if o.logLevel != "" {
		var ok bool
		if level, ok = logger.ParseLevel(o.logLevel); !ok {
			return nil, fmt.Errorf("unknown log level %q", o.logLevel)
		}
	}

	switch o.logFormat {
	case "slog", "":
		return logger.NewSlogWriter(w, level, false), nil
	case "zerolog":
		return logger.NewZerolog(w, level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", o.logFormat)
	}
}

// newEnricher builds the header enricher from the telemetry settings. It
// returns a nil enricher when no source is configured.
func newEnricher(ctx context.Context, tel config.Telemetry, log logger.Logger) (*header.Enricher, func(), error) {
	switch {
	case tel.MQTTBroker != "":
		src, err := header.NewMQTTSource(header.MQTTConfig{Broker: tel.MQTTBroker, Prefix: tel.MQTTPrefix}, log)
		if err != nil {
			return nil, nil, err
		}
		if err := src.Connect(ctx); err != nil {
			return nil, nil, err
		}
		e, err := header.NewEnricher(src, header.WithLogger(log))
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		return e, src.Close, nil

	case tel.APIURL != "":
		src, err := header.NewAPISource(tel.APIURL, nil)
		if err != nil {
			return nil, nil, err
		}
		e, err := header.NewEnricher(src, header.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return e, func() {}, nil

	default:
		return nil, nil, nil
	}
}
