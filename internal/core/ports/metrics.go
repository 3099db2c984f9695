package ports

// MetricsRecorder is the port interface for recording metrics.
// Implementations are adapters (PrometheusMetricsRecorder for production,
// NoopMetricsRecorder for disabled/testing).
type MetricsRecorder interface {
	// RecordLoginStarted records a login redirect issued to an IdP.
	RecordLoginStarted(idpEntityID string)

	// RecordAuthAttempt records a completed SAML authentication attempt.
	RecordAuthAttempt(idpEntityID string, success bool)

	// RecordTokenDecode records a session token decode result.
	RecordTokenDecode(valid bool)

	// RecordMetadataRefresh records a metadata refresh attempt.
	RecordMetadataRefresh(source string, success bool, idpCount int)
}
