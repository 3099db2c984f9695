package metrics

import (
	"github.com/trustgrid/samlsp/internal/core/ports"
)

// NoopMetricsRecorder is a no-op implementation for when metrics are disabled.
// All methods are safe to call and do nothing.
type NoopMetricsRecorder struct{}

// NewNoopMetricsRecorder creates a new no-op metrics recorder.
func NewNoopMetricsRecorder() *NoopMetricsRecorder {
	return &NoopMetricsRecorder{}
}

// RecordLoginStarted is a no-op.
func (n *NoopMetricsRecorder) RecordLoginStarted(idpEntityID string) {}

// RecordAuthAttempt is a no-op.
func (n *NoopMetricsRecorder) RecordAuthAttempt(idpEntityID string, success bool) {}

// RecordTokenDecode is a no-op.
func (n *NoopMetricsRecorder) RecordTokenDecode(valid bool) {}

// RecordMetadataRefresh is a no-op.
func (n *NoopMetricsRecorder) RecordMetadataRefresh(source string, success bool, idpCount int) {}

// Ensure NoopMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*NoopMetricsRecorder)(nil)
