// Package metrics provides metrics recording for model endpoint calls.
package metrics

import "time"

// Recorder receives one observation per model call.
type Recorder interface {
	ObserveModelRequest(
		model string,
		inputTokens, outputTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder discards all observations.
type NoopRecorder struct{}

// Nop returns a recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

// ObserveModelRequest does nothing.
func (NoopRecorder) ObserveModelRequest(_ string, _, _ int, _ bool, _ string, _ time.Duration) {}
