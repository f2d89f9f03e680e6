package hal

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// Init loads the host GPIO drivers. It must run once before any Open call.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("gpio host init: %w", err)
	}
	return nil
}

type periphOutput struct {
	pin gpio.PinIO
}

// OpenOutput claims the named line as an output driven to initial.
// Names follow gpioreg, e.g. the BCM number as a string on a Raspberry Pi.
func OpenOutput(name string, initial bool) (OutputPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no GPIO output pin named: %s", name)
	}
	if err := p.Out(gpio.Level(initial)); err != nil {
		return nil, fmt.Errorf("configure output %s: %w", name, err)
	}
	return &periphOutput{pin: p}, nil
}

func (o *periphOutput) Set(high bool) error {
	return o.pin.Out(gpio.Level(high))
}

type periphEcho struct {
	pin gpio.PinIO
}

// OpenEcho claims the named line as a pulled-down input with edge detection.
func OpenEcho(name string) (EchoPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no GPIO echo pin named: %s", name)
	}
	if err := p.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure echo %s: %w", name, err)
	}
	return &periphEcho{pin: p}, nil
}

func (e *periphEcho) PulseIn(timeout time.Duration) (time.Duration, bool) {
	deadline := time.Now().Add(timeout)
	// periph treats a negative timeout as "wait forever", so never pass one
	remaining := func() time.Duration {
		if r := time.Until(deadline); r > 0 {
			return r
		}
		return 0
	}

	// a pulse already in progress is not ours; let it finish first
	if e.pin.Read() == gpio.High {
		if err := e.pin.In(gpio.PullDown, gpio.FallingEdge); err != nil {
			return 0, false
		}
		if !e.pin.WaitForEdge(remaining()) {
			return 0, false
		}
	}

	if err := e.pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return 0, false
	}
	if !e.pin.WaitForEdge(remaining()) {
		return 0, false
	}
	start := time.Now()

	if err := e.pin.In(gpio.PullDown, gpio.FallingEdge); err != nil {
		return 0, false
	}
	if !e.pin.WaitForEdge(remaining()) {
		return 0, false
	}
	return time.Since(start), true
}
