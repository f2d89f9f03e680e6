// Package peer is the serial link to the lid actuator board. Frames are
// newline-terminated ASCII lines so the peer can parse them without framing state:
//
//	D:<avg_cm>   averaged proximity, every proximity tick
//	O:1          open the lid
//	O:0          close the lid
package peer

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/LeonardoBeccarini/smartdustbin/internal/model"
	"github.com/LeonardoBeccarini/smartdustbin/internal/model/messages"
)

// DefaultBaudRate matches the actuator firmware.
const DefaultBaudRate = 9600

// Link writes protocol lines to the actuator peer.
type Link struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLink wraps any writer, typically an open serial.Port.
func NewLink(w io.Writer) *Link {
	return &Link{w: w}
}

// Open opens the serial device at baud, 8-N-1.
func Open(device string, baud int) (serial.Port, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	return port, nil
}

// SendDistance emits the averaged proximity reading.
func (l *Link) SendDistance(avgCM float64) error {
	return l.writeLine(messages.DistanceLine(avgCM))
}

// SendCommand tells the peer to move the lid into s.
func (l *Link) SendCommand(s model.LidState) error {
	return l.writeLine(s.Command())
}

func (l *Link) writeLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, line+"\n"); err != nil {
		return fmt.Errorf("peer write %q: %w", line, err)
	}
	return nil
}
