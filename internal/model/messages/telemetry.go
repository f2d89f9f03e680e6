package messages

import (
	"strconv"

	"github.com/LeonardoBeccarini/smartdustbin/internal/model/entities"
)

// Broker topics. Payloads are plain UTF-8, QoS 0.
const (
	TopicFillLevel = "smartdustbin/filllevel"
	TopicLidState  = "smartdustbin/lidstate"
)

// FillLevel is the payload of TopicFillLevel, one fractional digit ("73.4").
func FillLevel(pct float64) string {
	return strconv.FormatFloat(pct, 'f', 1, 64)
}

// LidState is the payload of TopicLidState, exactly "OPEN" or "CLOSED".
func LidState(s entities.LidState) string {
	if s.IsOpen() {
		return string(entities.LidOpen)
	}
	return string(entities.LidClosed)
}
