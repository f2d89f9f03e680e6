// Package hal exposes the GPIO lines the node drives: ultrasonic trigger and
// echo lines and the lid status indicator.
package hal

import "time"

// OutputPin is a digital output line.
type OutputPin interface {
	Set(high bool) error
}

// EchoPin is a digital input line that can time a high pulse.
type EchoPin interface {
	// PulseIn waits for the line to go high and returns how long it stayed high.
	// ok is false when no complete pulse was seen within timeout.
	PulseIn(timeout time.Duration) (width time.Duration, ok bool)
}
