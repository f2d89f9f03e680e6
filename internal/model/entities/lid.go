package entities

// LidState is the position of the bin lid as last commanded to the actuator peer.
type LidState string

const (
	LidClosed LidState = "CLOSED"
	LidOpen   LidState = "OPEN"
)

// IsOpen reports whether the lid is open.
func (s LidState) IsOpen() bool { return s == LidOpen }

// Command returns the peer command for moving the lid into s.
func (s LidState) Command() string {
	if s == LidOpen {
		return "O:1"
	}
	return "O:0"
}
