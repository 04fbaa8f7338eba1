package msg

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPeer is the server end of a net.Pipe driven by test goroutines.
type testPeer struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func newTestChannel(t *testing.T, opts ...Option) (*Channel, *testPeer) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	ch, err := NewChannel(NewConnTransport(local), opts...)
	require.NoError(t, err)

	return ch, &testPeer{t: t, conn: remote, reader: bufio.NewReader(remote)}
}

func (p *testPeer) readLine() string {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return ""
	}

	return strings.TrimRight(line, "\n")
}

func (p *testPeer) expect(want string) bool {
	return assert.Equal(p.t, want, p.readLine())
}

func (p *testPeer) write(s string) {
	_, err := p.conn.Write([]byte(s))
	assert.NoError(p.t, err)
}
