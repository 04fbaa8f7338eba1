package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-msgcam/msg"
)

type enricherFunc func(ctx context.Context, img *Image) error

func (f enricherFunc) Enrich(ctx context.Context, img *Image) error { return f(ctx, img) }

func TestCamera_Accessors(t *testing.T) {
	cam, _ := newTestCamera(t)
	ctx := context.Background()

	temp, err := cam.Temperature(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -14.8, temp, 1e-9)

	setp, err := cam.Setpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, -15, setp)

	state, err := cam.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, Idle, state)

	timer, err := cam.Timer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, timer)
}

func TestCamera_ParseFailure(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.with(func(d *stubDevice) {
		d.temp = "warm"
		d.setp = "-15.5"
	})

	_, err := cam.Temperature(context.Background())
	require.ErrorIs(t, err, ErrParse)

	_, err = cam.Setpoint(context.Background())
	require.ErrorIs(t, err, ErrParse)
}

func TestCamera_CaptureScenario(t *testing.T) {
	cam, dev := newTestCamera(t)

	frame, pixels := testFrame(t, 2048)
	dev.setFrame(frame)

	img, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 5.0})
	require.NoError(t, err)
	require.NotNil(t, img)

	assert.Len(t, img.Pixels, 2048)
	assert.Equal(t, pixels, img.Pixels)
	assert.InDelta(t, -14.8, img.Temperature, 1e-9)
	assert.Equal(t, -15, img.Setpoint)

	card, ok := img.Card(KeyCamTemp)
	require.True(t, ok)
	assert.InDelta(t, -14.8, card.Value, 1e-9)
	card, ok = img.Card(KeyCamSetp)
	require.True(t, ok)
	assert.Equal(t, -15, card.Value)
	_, ok = img.Card("OBJECT")
	assert.True(t, ok)

	assert.Equal(t, []string{
		"run expose 0 light 5",
		"get state",
		"get state",
		"run readout",
		"get state",
		"fits 0 1322240",
		"get temp",
		"get setp",
		"run idle",
	}, dev.recorded())
	assert.Equal(t, "Idle", dev.currentState())

	m := cam.GetMetrics()
	assert.Equal(t, uint64(3), m.PollCount.Load())
	assert.Equal(t, uint64(1), m.CaptureCount.Load())
	assert.Zero(t, m.CaptureErrCount.Load())
}

func TestCamera_CaptureExposeRefused(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.with(func(d *stubDevice) { d.refuse["run expose"] = true })

	img, err := cam.Capture(context.Background(), ExposureRequest{Type: Dark, Duration: 1})
	require.ErrorIs(t, err, ErrExposureCommandFailed)
	assert.Nil(t, img)

	assert.Zero(t, dev.count("fits"))
	assert.Zero(t, dev.count("run readout"))
	assert.Zero(t, dev.count("get state"))
	assert.Equal(t, 1, dev.count("run idle"))
	assert.Equal(t, "Idle", dev.currentState())
}

func TestCamera_CaptureReadoutRefused(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.with(func(d *stubDevice) { d.refuse["run readout"] = true })

	_, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 1})
	require.ErrorIs(t, err, ErrReadoutCommandFailed)

	assert.Zero(t, dev.count("fits"))
	assert.Equal(t, 1, dev.count("run idle"))
	assert.Equal(t, "Idle", dev.currentState())
}

func TestCamera_CaptureTransferRefused(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.with(func(d *stubDevice) { d.refuse["fits"] = true })

	_, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 1})
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, msg.ErrProtocol)

	assert.Equal(t, 1, dev.count("run idle"))
	assert.Equal(t, "Idle", dev.currentState())
	assert.Equal(t, uint64(1), cam.GetMetrics().CaptureErrCount.Load())
}

func TestCamera_CaptureUndecodableFrame(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.setFrame([]byte("definitely not a FITS container"))

	_, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 1})
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, "Idle", dev.currentState())
}

func TestCamera_CaptureTransportDropMidPoll(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.with(func(d *stubDevice) { d.dropAt = 2 })

	_, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 1})
	require.ErrorIs(t, err, msg.ErrTransport)
	assert.NotErrorIs(t, err, ErrExposureCommandFailed)

	assert.Zero(t, dev.count("run readout"))
	assert.Equal(t, uint64(1), cam.GetMetrics().CleanupErrCount.Load())
}

func TestCamera_CaptureEnricher(t *testing.T) {
	var called int
	enrich := enricherFunc(func(_ context.Context, img *Image) error {
		called++
		img.SetCard("RA", "12:00:00", "Right ascension")
		return nil
	})

	cam, dev := newTestCamera(t, WithEnricher(enrich))
	frame, _ := testFrame(t, 64)
	dev.setFrame(frame)

	img, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, called)

	card, ok := img.Card("RA")
	require.True(t, ok)
	assert.Equal(t, "12:00:00", card.Value)
}

func TestCamera_CaptureEnricherFailureKeepsFrame(t *testing.T) {
	enrich := enricherFunc(func(context.Context, *Image) error {
		return errors.New("telemetry unavailable")
	})

	cam, dev := newTestCamera(t, WithEnricher(enrich))
	frame, _ := testFrame(t, 64)
	dev.setFrame(frame)

	img, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 0.5})
	require.NoError(t, err)
	assert.Len(t, img.Pixels, 64)
	assert.Equal(t, "Idle", dev.currentState())
}

func TestCamera_CaptureInvalidRequest(t *testing.T) {
	cam, dev := newTestCamera(t)

	_, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 0})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = cam.Capture(context.Background(), ExposureRequest{Type: ExposureType(9), Duration: 1})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 1, MaxBytes: -1})
	require.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, dev.recorded())
}

func TestCamera_CaptureNegotiated(t *testing.T) {
	cam, dev := newTestCamera(t, WithTransferMode(TransferNegotiated))
	frame, pixels := testFrame(t, 2048)
	dev.setFrame(frame)

	img, err := cam.Capture(context.Background(), ExposureRequest{Type: Light, Duration: 1, MaxBytes: len(frame)})
	require.NoError(t, err)
	assert.Equal(t, pixels, img.Pixels)
	assert.Equal(t, 1, dev.count("run fits 0"))
	assert.Equal(t, "Idle", dev.currentState())
}

func TestCamera_TransferNegotiatedSizeMismatch(t *testing.T) {
	cam, dev := newTestCamera(t, WithTransferMode(TransferNegotiated))
	frame, _ := testFrame(t, 64)
	dev.setFrame(frame)

	_, err := cam.Transfer(context.Background(), len(frame)+2880)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, msg.ErrProtocol)

	// the announced block was drained, so the channel is still in sync
	state, err := cam.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, state)
}

func TestCamera_TransferNegotiatedRefused(t *testing.T) {
	cam, dev := newTestCamera(t, WithTransferMode(TransferNegotiated))
	dev.with(func(d *stubDevice) { d.refuse["run fits"] = true })

	_, err := cam.Transfer(context.Background(), 100)
	require.ErrorIs(t, err, ErrTransferFailed)
}

func TestCamera_TransferProbeOversized(t *testing.T) {
	cam, dev := newTestCamera(t)
	frame, _ := testFrame(t, 64)
	dev.setFrame(frame)

	_, err := cam.Transfer(context.Background(), 100)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, msg.ErrProtocol)

	_, err = cam.State(context.Background())
	require.NoError(t, err)

	_, err = cam.Transfer(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCamera_WaitStateStopsOnMatch(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.with(func(d *stubDevice) { d.script = []string{"Exposing", "Exposing", "Exposed", "Reading"} })

	err := cam.WaitState(context.Background(), Exposed, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, dev.count("get state"))
	assert.Equal(t, "Exposed", dev.currentState())
}

func TestCamera_WaitStateTimeout(t *testing.T) {
	cam, dev := newTestCamera(t, WithPollInterval(5*time.Millisecond))
	dev.with(func(d *stubDevice) { d.state = "Exposing" })

	err := cam.WaitState(context.Background(), Exposed, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, msg.ErrTimeout)
	assert.Positive(t, dev.count("get state"))
}

func TestCamera_WaitStateCanceled(t *testing.T) {
	cam, dev := newTestCamera(t, WithPollInterval(time.Second))
	dev.with(func(d *stubDevice) { d.state = "Reading" })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := cam.WaitState(ctx, Read, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, dev.count("get state"))
}

func TestCamera_SetCooler(t *testing.T) {
	cam, dev := newTestCamera(t)

	ok, err := cam.SetCooler(context.Background(), CoolerOn)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, dev.count("run cooler 1"))

	dev.with(func(d *stubDevice) { d.state = "Exposing" })
	_, err = cam.SetCooler(context.Background(), CoolerOff)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, dev.count("run cooler 0"))

	_, err = cam.SetCooler(context.Background(), CoolerState(7))
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCamera_Abort(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.with(func(d *stubDevice) {
		d.state = "Exposing"
		d.abortScript = []string{"Exposing", "Idle"}
	})

	ok, err := cam.Abort(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, dev.count("get state"))
	assert.Equal(t, "Idle", dev.currentState())
}

func TestCamera_AbortRefused(t *testing.T) {
	cam, dev := newTestCamera(t)
	dev.with(func(d *stubDevice) { d.refuse["run abort"] = true })

	ok, err := cam.Abort(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, dev.count("get state"))
}

func TestCamera_ExposeInvalidArguments(t *testing.T) {
	cam, dev := newTestCamera(t)

	_, err := cam.Expose(context.Background(), Light, -1)
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = cam.Expose(context.Background(), ExposureType(3), 1)
	require.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, dev.recorded())
}

func TestCamera_IdleAndReadoutDoNotPoll(t *testing.T) {
	cam, dev := newTestCamera(t)

	ok, err := cam.Readout(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cam.Idle(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"run readout", "run idle"}, dev.recorded())
}

func TestCamera_Close(t *testing.T) {
	cam, _ := newTestCamera(t)

	assert.True(t, cam.Connected())
	require.NoError(t, cam.Close())
	assert.False(t, cam.Connected())

	_, err := cam.State(context.Background())
	require.ErrorIs(t, err, msg.ErrClosed)
}

func TestNew_Nil(t *testing.T) {
	cfg, err := NewConfig("localhost", DefaultPort)
	require.NoError(t, err)

	_, err = New(nil, cfg)
	require.Error(t, err)
}
