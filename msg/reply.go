package msg

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Status is the second token of a reply line.
type Status string

const (
	// StatusAck reports that the command succeeded.
	StatusAck Status = "ack"
	// StatusNak reports that the command failed on the device.
	StatusNak Status = "nak"
	// StatusBlk announces a raw bulk block; the payload holds its byte count.
	StatusBlk Status = "blk"
)

// Reply is one parsed reply line.
type Reply struct {
	Seq     uint32
	Status  Status
	Payload []string
}

// OK reports whether the reply is an ack.
func (r *Reply) OK() bool { return r.Status == StatusAck }

// Text returns the payload tokens joined by a single space.
func (r *Reply) Text() string { return strings.Join(r.Payload, " ") }

// BlockSize returns the announced byte count of a blk reply.
func (r *Reply) BlockSize() (int, error) {
	if r.Status != StatusBlk {
		return 0, fmt.Errorf("%w: expected blk reply, got %q", ErrProtocol, r.Status)
	}

	if len(r.Payload) == 0 {
		return 0, fmt.Errorf("%w: blk reply without byte count", ErrProtocol)
	}

	n, err := strconv.Atoi(r.Payload[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid blk byte count %q", ErrProtocol, r.Payload[0])
	}

	return n, nil
}

func (r *Reply) String() string {
	if len(r.Payload) == 0 {
		return fmt.Sprintf("%d %s", r.Seq, r.Status)
	}

	return fmt.Sprintf("%d %s %s", r.Seq, r.Status, r.Text())
}

// ParseReply tokenizes a reply line into seq, status and payload.
//
// A line with fewer than two tokens, a non-numeric seq, an unknown status or a
// blk reply without a valid byte count is rejected with ErrProtocol.
func ParseReply(line string) (*Reply, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: short reply %q", ErrProtocol, line)
	}

	seq, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reply seq %q", ErrProtocol, fields[0])
	}

	reply := &Reply{
		Seq:     uint32(seq),
		Status:  Status(fields[1]),
		Payload: fields[2:],
	}

	switch reply.Status {
	case StatusAck, StatusNak:
	case StatusBlk:
		if _, err := reply.BlockSize(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown reply status %q", ErrProtocol, fields[1])
	}

	return reply, nil
}

// formatRequest renders a request line including its terminator.
func formatRequest(seq uint32, verb string, args []any) (string, error) {
	var sb strings.Builder

	sb.WriteString(strconv.FormatUint(uint64(seq), 10))
	for _, tok := range append([]any{verb}, args...) {
		s, err := formatArg(tok)
		if err != nil {
			return "", err
		}
		sb.WriteByte(' ')
		sb.WriteString(s)
	}
	sb.WriteByte('\n')

	return sb.String(), nil
}

func formatArg(arg any) (string, error) {
	var s string
	switch v := arg.(type) {
	case string:
		s = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: non-finite number %v", ErrInvalidArgument, v)
		}
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return formatArg(float64(v))
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}

	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidArgument, s)
	}

	return s, nil
}
