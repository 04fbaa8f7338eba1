package msg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		seq     uint32
		status  Status
		payload []string
	}{
		{"ack with payload", "3 ack -12.5", 3, StatusAck, []string{"-12.5"}},
		{"ack without payload", "1 ack", 1, StatusAck, []string{}},
		{"nak with reason", "7 nak camera busy", 7, StatusNak, []string{"camera", "busy"}},
		{"blk", "2 blk 1322240", 2, StatusBlk, []string{"1322240"}},
		{"blk zero", "2 blk 0", 2, StatusBlk, []string{"0"}},
		{"extra whitespace", "  4\tack   Idle  ", 4, StatusAck, []string{"Idle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := ParseReply(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.seq, reply.Seq)
			assert.Equal(t, tt.status, reply.Status)
			assert.Equal(t, tt.payload, reply.Payload)
		})
	}
}

func TestParseReply_Invalid(t *testing.T) {
	lines := []string{
		"",
		"ack",
		"1",
		"x ack",
		"-1 ack",
		"1 ok",
		"1 blk",
		"1 blk -5",
		"1 blk many",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := ParseReply(line)
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestReply_Accessors(t *testing.T) {
	reply := &Reply{Seq: 5, Status: StatusAck, Payload: []string{"a", "b"}}
	assert.True(t, reply.OK())
	assert.Equal(t, "a b", reply.Text())
	assert.Equal(t, "5 ack a b", reply.String())

	_, err := reply.BlockSize()
	require.ErrorIs(t, err, ErrProtocol)

	blk := &Reply{Seq: 6, Status: StatusBlk, Payload: []string{"42"}}
	n, err := blk.BlockSize()
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.False(t, blk.OK())
	assert.Equal(t, "6 blk", (&Reply{Seq: 6, Status: StatusBlk}).String())
}

func TestFormatRequest(t *testing.T) {
	tests := []struct {
		name string
		seq  uint32
		verb string
		args []any
		want string
	}{
		{"get", 1, "get", []any{"temp"}, "1 get temp\n"},
		{"run no args", 2, "run", []any{"idle"}, "2 run idle\n"},
		{"expose", 3, "run", []any{"expose", 0, "light", 5.0}, "3 run expose 0 light 5\n"},
		{"fractional", 4, "run", []any{"expose", 0, "dark", 0.25}, "4 run expose 0 dark 0.25\n"},
		{"fits probe", 5, "fits", []any{0, 1322240}, "5 fits 0 1322240\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatRequest(tt.seq, tt.verb, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRequest_InvalidArgument(t *testing.T) {
	for _, arg := range []any{"two words", "line\nbreak", ""} {
		_, err := formatRequest(1, "run", []any{arg})
		require.ErrorIs(t, err, ErrInvalidArgument)
	}
}
