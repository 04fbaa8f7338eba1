package simulator

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-msgcam/camera"
	"github.com/arloliu/go-msgcam/logger"
	"github.com/arloliu/go-msgcam/msg"
)

func quietLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.DebugLevel, false)
}

func simOptions() []Option {
	return []Option{
		WithFrameSize(16, 16),
		WithReadoutDelay(5 * time.Millisecond),
		WithTimeScale(0.01),
		WithLogger(quietLogger()),
	}
}

// pipeCamera connects a camera to srv through net.Pipe.
func pipeCamera(t *testing.T, srv *Server, opts ...camera.Option) *camera.Camera {
	t.Helper()

	local, remote := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(ctx, remote)
	}()
	t.Cleanup(func() {
		cancel()
		_ = local.Close()
		<-done
	})

	cfg, err := camera.NewConfig("sim", camera.DefaultPort,
		append([]camera.Option{camera.WithPollInterval(time.Millisecond), camera.WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)

	ch, err := msg.NewChannel(msg.NewConnTransport(local), msg.WithLogger(quietLogger()))
	require.NoError(t, err)

	cam, err := camera.New(ch, cfg)
	require.NoError(t, err)

	return cam
}

func TestServer_CaptureProbe(t *testing.T) {
	srv, err := NewServer(simOptions()...)
	require.NoError(t, err)
	cam := pipeCamera(t, srv)

	img, err := cam.Capture(context.Background(), camera.ExposureRequest{Type: camera.Light, Duration: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{16, 16}, img.Axes)
	assert.Len(t, img.Pixels, 16*16*2)
	assert.InDelta(t, DefaultAmbientTemp, img.Temperature, 1e-9)
	assert.Equal(t, DefaultSetpoint, img.Setpoint)

	card, ok := img.Card("EXPTIME")
	require.True(t, ok)
	assert.InDelta(t, 2.0, card.Value, 1e-9)

	state, err := cam.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, camera.Idle, state)
}

func TestServer_CaptureNegotiated(t *testing.T) {
	srv, err := NewServer(simOptions()...)
	require.NoError(t, err)
	cam := pipeCamera(t, srv, camera.WithTransferMode(camera.TransferNegotiated))

	dev, err := NewDevice(simOptions()...)
	require.NoError(t, err)

	img, err := cam.Capture(context.Background(), camera.ExposureRequest{
		Type:     camera.Dark,
		Duration: 1,
		MaxBytes: dev.FrameSize(),
	})
	require.NoError(t, err)
	card, ok := img.Card("EXPTYPE")
	require.True(t, ok)
	assert.Equal(t, "dark", card.Value)
}

func TestServer_CaptureTransferRefused(t *testing.T) {
	srv, err := NewServer(simOptions()...)
	require.NoError(t, err)
	cam := pipeCamera(t, srv)

	_, err = cam.Capture(context.Background(), camera.ExposureRequest{Type: camera.Light, Duration: 1, MaxBytes: 100})
	require.ErrorIs(t, err, camera.ErrTransferFailed)

	state, err := cam.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, camera.Idle, state)
}

func TestServer_CoolerAndAbort(t *testing.T) {
	srv, err := NewServer(simOptions()...)
	require.NoError(t, err)
	cam := pipeCamera(t, srv)
	ctx := context.Background()

	ok, err := cam.SetCooler(ctx, camera.CoolerOn)
	require.NoError(t, err)
	assert.True(t, ok)

	temp, err := cam.Temperature(ctx)
	require.NoError(t, err)
	assert.InDelta(t, float64(DefaultSetpoint)+0.2, temp, 1e-9)

	ok, err = cam.Channel().Run(ctx, "expose", 0, "light", 600)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = cam.SetCooler(ctx, camera.CoolerOff)
	require.ErrorIs(t, err, camera.ErrInvalidState)

	ok, err = cam.Abort(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServer_TCP(t *testing.T) {
	srv, err := NewServer(simOptions()...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Listen(ctx, "127.0.0.1:0"))
	require.Error(t, srv.Listen(ctx, "127.0.0.1:0"))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	addr, ok := srv.Addr().(*net.TCPAddr)
	require.True(t, ok)

	cfg, err := camera.NewConfig("127.0.0.1", addr.Port, camera.WithLogger(quietLogger()))
	require.NoError(t, err)

	cam, err := camera.Connect(ctx, cfg)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return srv.ConnCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, cam.Close())
	assert.Eventually(t, func() bool { return srv.ConnCount() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServer_ServeBeforeListen(t *testing.T) {
	srv, err := NewServer()
	require.NoError(t, err)
	require.Error(t, srv.Serve(context.Background()))
	assert.Nil(t, srv.Addr())
	require.NoError(t, srv.Close())
}
