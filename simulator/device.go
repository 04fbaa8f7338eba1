package simulator

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-msgcam/camera"
)

// Response is the device answer to one request line.
type Response struct {
	// Lines are reply lines without the sequence number or newline.
	Lines []string
	// Block is the raw bulk block following the last line.
	Block []byte
}

func ack(payload ...string) Response {
	return Response{Lines: []string{strings.Join(append([]string{"ack"}, payload...), " ")}}
}

func nak(reason string) Response {
	return Response{Lines: []string{"nak " + reason}}
}

// Device is a simulated MSG camera. The state advances with wall time:
// Exposing turns Exposed after the exposure time, Reading turns Read after
// the readout delay. It is safe for concurrent use.
type Device struct {
	cfg *config
	now func() time.Time

	mu        sync.Mutex
	state     camera.State
	cooler    camera.CoolerState
	setpoint  int
	expType   camera.ExposureType
	exptime   float64
	deadline  time.Time
	frame     []byte
	frameSize int
}

// NewDevice creates an idle device.
func NewDevice(opts ...Option) (*Device, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return newDevice(cfg)
}

func newDevice(cfg *config) (*Device, error) {
	d := &Device{
		cfg:      cfg,
		now:      time.Now,
		state:    camera.Idle,
		setpoint: cfg.setpoint,
	}

	blank, err := d.render(camera.Light, 1)
	if err != nil {
		return nil, err
	}
	d.frameSize = len(blank)

	return d, nil
}

// FrameSize returns the byte size of every frame the device produces.
func (d *Device) FrameSize() int { return d.frameSize }

// State returns the current state.
func (d *Device) State() camera.State {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.advance()

	return d.state
}

// Handle executes one request given as its tokens after the sequence number.
func (d *Device) Handle(args []string) Response {
	if len(args) == 0 {
		return nak("empty request")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.advance()

	switch args[0] {
	case "get":
		if len(args) != 2 {
			return nak("usage: get <key>")
		}
		return d.get(args[1])
	case "run":
		if len(args) < 2 {
			return nak("usage: run <cmd> ...")
		}
		return d.run(args[1], args[2:])
	case "fits":
		return d.fitsProbe(args[1:])
	default:
		return nak("unknown verb " + args[0])
	}
}

func (d *Device) get(key string) Response {
	switch key {
	case "state":
		return ack(d.state.String())
	case "temp":
		return ack(strconv.FormatFloat(d.temperature(), 'f', 1, 64))
	case "setp":
		return ack(strconv.Itoa(d.setpoint))
	case "timer":
		return ack(strconv.Itoa(d.remaining()))
	case "cooler":
		return ack(strconv.Itoa(int(d.cooler)))
	default:
		return nak("unknown key " + key)
	}
}

func (d *Device) run(cmd string, args []string) Response {
	switch cmd {
	case "cooler":
		if len(args) != 1 {
			return nak("usage: run cooler <0|1>")
		}
		if d.state == camera.Exposing {
			return nak("exposing")
		}
		c, err := camera.ParseCoolerState(args[0])
		if err != nil {
			return nak("bad cooler state " + args[0])
		}
		d.cooler = c
		return ack()

	case "expose":
		return d.expose(args)

	case "readout":
		if d.state != camera.Exposed {
			return nak("no exposure to read out in state " + d.state.String())
		}
		frame, err := d.render(d.expType, d.exptime)
		if err != nil {
			d.cfg.logger.Error("simulator: render frame", "error", err)
			return nak("render failed")
		}
		d.frame = frame
		d.state = camera.Reading
		d.deadline = d.now().Add(d.cfg.readoutDelay)
		return ack()

	case "idle":
		d.state = camera.Idle
		d.frame = nil
		return ack()

	case "abort":
		if d.state == camera.Exposing || d.state == camera.Reading {
			d.cfg.logger.Info("simulator: exposure aborted", "state", d.state)
		}
		d.state = camera.Idle
		d.frame = nil
		return ack()

	case "fits":
		return d.fitsNegotiated(args)

	default:
		return nak("unknown command " + cmd)
	}
}

func (d *Device) expose(args []string) Response {
	if len(args) != 3 {
		return nak("usage: run expose 0 <light|dark> <seconds>")
	}
	if d.state.IsBusy() {
		return nak("camera busy in state " + d.state.String())
	}

	typ, err := camera.ParseExposureType(args[1])
	if err != nil {
		return nak("bad exposure type " + args[1])
	}
	secs, err := strconv.ParseFloat(args[2], 64)
	if err != nil || !(secs > 0) {
		return nak("bad exposure time " + args[2])
	}

	d.expType, d.exptime = typ, secs
	d.state = camera.Exposing
	d.deadline = d.now().Add(time.Duration(secs * d.cfg.timeScale * float64(time.Second)))
	d.frame = nil
	d.cfg.logger.Debug("simulator: exposure started", "type", typ, "seconds", secs)

	return ack()
}

func (d *Device) parseMax(args []string) (int, bool) {
	if len(args) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return 0, false
	}

	return n, true
}

// fitsProbe answers "fits 0 <max>" with the frame as a bulk block.
func (d *Device) fitsProbe(args []string) Response {
	limit, ok := d.parseMax(args)
	if !ok {
		return nak("usage: fits 0 <max>")
	}
	if d.state != camera.Read || d.frame == nil {
		return nak("no image in state " + d.state.String())
	}
	if len(d.frame) > limit {
		return nak(fmt.Sprintf("image of %d bytes exceeds %d", len(d.frame), limit))
	}

	return Response{Lines: []string{fmt.Sprintf("blk %d", len(d.frame))}, Block: d.frame}
}

// fitsNegotiated answers "run fits 0 <max>" with ack and a second blk line of
// exactly max bytes.
func (d *Device) fitsNegotiated(args []string) Response {
	limit, ok := d.parseMax(args)
	if !ok {
		return nak("usage: run fits 0 <max>")
	}
	if d.state != camera.Read || d.frame == nil {
		return nak("no image in state " + d.state.String())
	}
	if len(d.frame) != limit {
		return nak(fmt.Sprintf("image is %d bytes, not %d", len(d.frame), limit))
	}

	return Response{Lines: []string{"ack", fmt.Sprintf("blk %d", limit)}, Block: d.frame}
}

// advance applies the time driven transitions. The caller holds d.mu.
func (d *Device) advance() {
	if d.deadline.IsZero() || d.now().Before(d.deadline) {
		return
	}

	switch d.state {
	case camera.Exposing:
		d.state = camera.Exposed
	case camera.Reading:
		d.state = camera.Read
	}
	d.deadline = time.Time{}
}

func (d *Device) remaining() int {
	if d.state != camera.Exposing || d.deadline.IsZero() {
		return 0
	}

	return int(d.deadline.Sub(d.now()).Round(time.Second) / time.Second)
}

func (d *Device) temperature() float64 {
	if d.cooler == camera.CoolerOn {
		return float64(d.setpoint) + 0.2
	}

	return d.cfg.ambient
}

// render produces a 16-bit frame: a bias ramp plus a signal proportional to
// the exposure time for light frames.
func (d *Device) render(typ camera.ExposureType, exptime float64) ([]byte, error) {
	w, h := d.cfg.width, d.cfg.height
	pixels := make([]byte, w*h*2)

	signal := 0.0
	if typ == camera.Light {
		signal = exptime * 50
	}
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 1000 + (x+y)%64
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy < 16 {
				v += int(signal)
			}
			if v > 32767 {
				v = 32767
			}
			binary.BigEndian.PutUint16(pixels[(y*w+x)*2:], uint16(int16(v)))
		}
	}

	img, err := camera.NewImage(16, []int{w, h}, pixels)
	if err != nil {
		return nil, err
	}
	img.SetCard("EXPTIME", exptime, "Exposure time (s)")
	img.SetCard("EXPTYPE", typ.String(), "Exposure type")
	img.SetCard("CAMERA", "msgcam-sim", "Simulated MSG camera")

	return img.MarshalFITS()
}
