// Package metrics provides MetricsRecorder adapters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trustgrid/samlsp/internal/core/ports"
)

// PrometheusMetricsRecorder records metrics using Prometheus.
type PrometheusMetricsRecorder struct {
	loginsStartedTotal   *prometheus.CounterVec
	authAttemptsTotal    *prometheus.CounterVec
	tokenDecodesTotal    *prometheus.CounterVec
	metadataRefreshTotal *prometheus.CounterVec
	metadataIdpCount     prometheus.Gauge
}

// NewPrometheusMetricsRecorder creates a new Prometheus metrics recorder
// using the default Prometheus registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return NewPrometheusMetricsRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsRecorderWithRegistry creates a new Prometheus
// metrics recorder with a custom registry. Use this for testing.
func NewPrometheusMetricsRecorderWithRegistry(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	loginsStartedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samlsp_logins_started_total",
		Help: "Total login redirects issued to IdPs",
	}, []string{"idp_entity_id"})

	authAttemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samlsp_auth_attempts_total",
		Help: "Total completed SAML authentication attempts",
	}, []string{"idp_entity_id", "result"})

	tokenDecodesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samlsp_token_decodes_total",
		Help: "Total session token decode attempts",
	}, []string{"result"})

	metadataRefreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samlsp_metadata_refresh_total",
		Help: "Total metadata refresh attempts",
	}, []string{"source", "result"})

	metadataIdpCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "samlsp_metadata_idp_count",
		Help: "Current number of loaded IdPs",
	})

	reg.MustRegister(
		loginsStartedTotal,
		authAttemptsTotal,
		tokenDecodesTotal,
		metadataRefreshTotal,
		metadataIdpCount,
	)

	return &PrometheusMetricsRecorder{
		loginsStartedTotal:   loginsStartedTotal,
		authAttemptsTotal:    authAttemptsTotal,
		tokenDecodesTotal:    tokenDecodesTotal,
		metadataRefreshTotal: metadataRefreshTotal,
		metadataIdpCount:     metadataIdpCount,
	}
}

// RecordLoginStarted records a login redirect issued to an IdP.
func (p *PrometheusMetricsRecorder) RecordLoginStarted(idpEntityID string) {
	p.loginsStartedTotal.WithLabelValues(idpEntityID).Inc()
}

// RecordAuthAttempt records a completed SAML authentication attempt.
func (p *PrometheusMetricsRecorder) RecordAuthAttempt(idpEntityID string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	p.authAttemptsTotal.WithLabelValues(idpEntityID, result).Inc()
}

// RecordTokenDecode records a session token decode result.
func (p *PrometheusMetricsRecorder) RecordTokenDecode(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	p.tokenDecodesTotal.WithLabelValues(result).Inc()
}

// RecordMetadataRefresh records a metadata refresh attempt.
func (p *PrometheusMetricsRecorder) RecordMetadataRefresh(source string, success bool, idpCount int) {
	result := "failure"
	if success {
		result = "success"
	}
	p.metadataRefreshTotal.WithLabelValues(source, result).Inc()
	if success {
		p.metadataIdpCount.Set(float64(idpCount))
	}
}

// Ensure PrometheusMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
