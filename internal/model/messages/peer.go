package messages

import "strconv"

// DistanceLine is the periodic averaged proximity line sent to the actuator peer,
// without its terminator.
func DistanceLine(avgCM float64) string {
	return "D:" + strconv.FormatFloat(avgCM, 'f', 2, 64)
}
