package msg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Transport is the duplex byte stream a Channel runs on.
//
// ReadLine returns one line without its terminator. A ReadLine interrupted by a
// deadline must keep the bytes already read so the next call returns the
// complete line.
type Transport interface {
	io.Writer
	// Flush writes any buffered data to the stream.
	Flush() error
	// ReadLine reads one '\n' terminated line.
	ReadLine() (string, error)
	// ReadFull reads exactly len(p) bytes.
	ReadFull(p []byte) error
	// SetDeadline sets the read and write deadline; the zero value clears it.
	SetDeadline(t time.Time) error
	// Close closes the stream.
	Close() error
}

// ConnTransport is a Transport over a net.Conn.
type ConnTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	partial bytes.Buffer
}

var _ Transport = (*ConnTransport)(nil)

// NewConnTransport wraps conn with buffered line and byte-count reads.
func NewConnTransport(conn net.Conn) *ConnTransport {
	return &ConnTransport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// Dial opens a TCP connection to addr, bounded by timeout and ctx.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*ConnTransport, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
	}

	return NewConnTransport(conn), nil
}

func (t *ConnTransport) Write(p []byte) (int, error) {
	return t.writer.Write(p)
}

func (t *ConnTransport) Flush() error {
	return t.writer.Flush()
}

func (t *ConnTransport) ReadLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		t.partial.WriteString(line)
		return "", err
	}

	if t.partial.Len() > 0 {
		line = t.partial.String() + line
		t.partial.Reset()
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (t *ConnTransport) ReadFull(p []byte) error {
	_, err := io.ReadFull(t.reader, p)
	return err
}

func (t *ConnTransport) SetDeadline(deadline time.Time) error {
	return t.conn.SetDeadline(deadline)
}

func (t *ConnTransport) Close() error {
	return t.conn.Close()
}

// RemoteAddr returns the remote network address.
func (t *ConnTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
