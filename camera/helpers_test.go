package camera

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-msgcam/logger"
	"github.com/arloliu/go-msgcam/msg"
)

// stubDevice is a scripted camera server on the far end of a net.Pipe.
//
// "get state" pops the next entry of the current script, then keeps returning
// the last observed state. Commands are recorded without their sequence number.
type stubDevice struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader

	mu      sync.Mutex
	state   string
	script  []string
	calls   []string
	temp    string
	setp    string
	frame   []byte
	negoSz  int // block size announced in negotiated mode, 0 means len(frame)
	refuse  map[string]bool
	dropAt  int // close the pipe on this "get state" query, 0 disables
	polls   int
	noReply map[string]bool

	exposeScript  []string
	readoutScript []string
	abortScript   []string
}

func newStubDevice(t *testing.T) (*stubDevice, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	d := &stubDevice{
		t:             t,
		conn:          remote,
		reader:        bufio.NewReader(remote),
		state:         "Idle",
		temp:          "-14.8",
		setp:          "-15",
		refuse:        map[string]bool{},
		noReply:       map[string]bool{},
		exposeScript:  []string{"Exposing", "Exposed"},
		readoutScript: []string{"Read"},
		abortScript:   []string{"Idle"},
	}

	return d, local
}

func newTestCamera(t *testing.T, opts ...Option) (*Camera, *stubDevice) {
	t.Helper()

	d, local := newStubDevice(t)

	quiet := logger.NewSlogWriter(io.Discard, logger.DebugLevel, false)
	opts = append([]Option{WithLogger(quiet), WithPollInterval(time.Millisecond)}, opts...)
	cfg, err := NewConfig("stub", DefaultPort, opts...)
	require.NoError(t, err)

	ch, err := msg.NewChannel(msg.NewConnTransport(local), msg.WithLogger(quiet))
	require.NoError(t, err)

	cam, err := New(ch, cfg)
	require.NoError(t, err)

	go d.serve(cfg.TransferMode())

	return cam, d
}

func (d *stubDevice) serve(mode TransferMode) {
	for {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			return
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return
		}
		seq, cmd := fields[0], strings.Join(fields[1:], " ")

		out, drop := d.handle(seq, cmd, fields[1:], mode)
		if drop {
			_ = d.conn.Close()
			return
		}
		if len(out) == 0 {
			continue
		}
		if _, err := d.conn.Write(out); err != nil {
			return
		}
	}
}

func (d *stubDevice) handle(seq, cmd string, args []string, mode TransferMode) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, cmd)

	reply := func(format string, a ...any) []byte {
		return []byte(seq + " " + fmt.Sprintf(format, a...) + "\n")
	}

	verb := args[0]
	if verb == "run" && len(args) > 1 {
		verb = "run " + args[1]
	}
	if d.noReply[verb] {
		return nil, false
	}
	if d.refuse[verb] {
		return reply("nak refused"), false
	}

	switch verb {
	case "get":
		switch args[1] {
		case "state":
			d.polls++
			if d.dropAt > 0 && d.polls == d.dropAt {
				return nil, true
			}
			if len(d.script) > 0 {
				d.state, d.script = d.script[0], d.script[1:]
			}
			return reply("ack %s", d.state), false
		case "temp":
			return reply("ack %s", d.temp), false
		case "setp":
			return reply("ack %s", d.setp), false
		case "timer":
			return reply("ack 3"), false
		}
		return reply("nak unknown key"), false

	case "run expose":
		d.state, d.script = "Exposing", append([]string(nil), d.exposeScript...)
	case "run readout":
		d.state, d.script = "Reading", append([]string(nil), d.readoutScript...)
	case "run abort":
		d.script = append([]string(nil), d.abortScript...)
	case "run idle":
		d.state, d.script = "Idle", nil
	case "run cooler":
	case "fits":
		return append(reply("blk %d", len(d.frame)), d.frame...), false
	case "run fits":
		n := d.negoSz
		if n == 0 {
			n = len(d.frame)
		}
		out := reply("ack")
		out = append(out, reply("blk %d", n)...)
		return append(out, padTo(d.frame, n)...), false
	default:
		return reply("nak unknown command"), false
	}

	return reply("ack"), false
}

func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}

	return append(append([]byte(nil), b...), make([]byte, n-len(b))...)
}

func (d *stubDevice) setFrame(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = frame
}

func (d *stubDevice) with(fn func(d *stubDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

func (d *stubDevice) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.calls...)
}

// count returns how many recorded commands start with prefix.
func (d *stubDevice) count(prefix string) int {
	n := 0
	for _, c := range d.recorded() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}

	return n
}

func (d *stubDevice) currentState() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// testFrame returns a FITS container holding a 16-bit image whose pixel payload
// is n bytes long.
func testFrame(t *testing.T, n int) ([]byte, []byte) {
	t.Helper()
	require.Zero(t, n%2)

	pixels := make([]byte, n)
	for i := range pixels {
		pixels[i] = byte(i * 7)
	}

	img, err := NewImage(16, []int{n / 2}, pixels)
	require.NoError(t, err)
	img.SetCard("OBJECT", "flat", "target")

	data, err := img.MarshalFITS()
	require.NoError(t, err)

	return data, pixels
}
