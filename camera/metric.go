package camera

import "sync/atomic"

// CameraMetrics contains atomic metrics for a Camera.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type CameraMetrics struct {
	// PollCount indicates the number of state queries issued by poll loops.
	PollCount atomic.Uint64
	// CaptureCount indicates the number of exposures captured.
	CaptureCount atomic.Uint64
	// CaptureErrCount indicates the number of failed captures.
	CaptureErrCount atomic.Uint64
	// CleanupErrCount indicates the number of failed idle cleanups.
	CleanupErrCount atomic.Uint64
}

func (m *CameraMetrics) incPollCount() {
	m.PollCount.Add(1)
}

func (m *CameraMetrics) incCaptureCount() {
	m.CaptureCount.Add(1)
}

func (m *CameraMetrics) incCaptureErrCount() {
	m.CaptureErrCount.Add(1)
}

func (m *CameraMetrics) incCleanupErrCount() {
	m.CleanupErrCount.Add(1)
}
