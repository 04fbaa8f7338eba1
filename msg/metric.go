package msg

import "sync/atomic"

// ChannelMetrics contains atomic metrics for a Channel.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ChannelMetrics struct {
	// CommandSendCount indicates the number of request lines written.
	CommandSendCount atomic.Uint64
	// ReplyRecvCount indicates the number of matching reply lines received.
	ReplyRecvCount atomic.Uint64
	// NakCount indicates the number of nak replies.
	NakCount atomic.Uint64
	// StaleReplyCount indicates the number of discarded replies to abandoned requests.
	StaleReplyCount atomic.Uint64
	// BulkByteCount indicates the total number of raw bulk bytes received.
	BulkByteCount atomic.Uint64
	// ErrCount indicates the number of failed exchanges.
	ErrCount atomic.Uint64
}

func (m *ChannelMetrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *ChannelMetrics) incReplyRecvCount(status Status) {
	m.ReplyRecvCount.Add(1)
	if status == StatusNak {
		m.NakCount.Add(1)
	}
}

func (m *ChannelMetrics) incStaleReplyCount() {
	m.StaleReplyCount.Add(1)
}

func (m *ChannelMetrics) addBulkBytes(n int) {
	m.BulkByteCount.Add(uint64(n)) //nolint:gosec
}

func (m *ChannelMetrics) incErrCount() {
	m.ErrCount.Add(1)
}
