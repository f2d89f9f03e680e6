// Package ranger measures distance with an HC-SR04 style ultrasonic module.
package ranger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
	"github.com/LeonardoBeccarini/smartdustbin/internal/hal"
)

// Readings that fail validation come back as one of these. Callers treat any
// error from Measure as "no reading".
var (
	ErrEchoTimeout = errors.New("echo timeout")
	ErrOutOfRange  = errors.New("distance out of valid range")
)

// cmPerMicrosecond is half the round-trip speed of sound (~343 m/s).
const cmPerMicrosecond = 0.034 / 2

const (
	settleLow    = 2 * time.Microsecond
	triggerWidth = 10 * time.Microsecond
)

// Config describes one ranging module. Immutable after New.
type Config struct {
	Name        string
	EchoTimeout time.Duration
	MinCM       float64
	MaxCM       float64
}

type Ranger struct {
	cfg  Config
	trig hal.OutputPin
	echo hal.EchoPin
	clk  clock.Clock
}

func New(cfg Config, trig hal.OutputPin, echo hal.EchoPin, clk clock.Clock) *Ranger {
	return &Ranger{cfg: cfg, trig: trig, echo: echo, clk: clk}
}

func (r *Ranger) Name() string { return r.cfg.Name }

// Measure fires one ping and returns the validated distance in centimetres.
func (r *Ranger) Measure() (float64, error) {
	if err := r.trigger(); err != nil {
		return 0, fmt.Errorf("%s trigger: %w", r.cfg.Name, err)
	}

	width, ok := r.echo.PulseIn(r.cfg.EchoTimeout)
	if !ok || width <= 0 {
		return 0, ErrEchoTimeout
	}

	d := ToCentimeters(width)
	if d < r.cfg.MinCM || d > r.cfg.MaxCM {
		return 0, fmt.Errorf("%w: %.2f cm", ErrOutOfRange, d)
	}
	return d, nil
}

func (r *Ranger) trigger() error {
	if err := r.trig.Set(false); err != nil {
		return err
	}
	r.clk.Sleep(settleLow)
	if err := r.trig.Set(true); err != nil {
		return err
	}
	r.clk.Sleep(triggerWidth)
	return r.trig.Set(false)
}

// ToCentimeters converts an echo pulse width into a one-way distance.
func ToCentimeters(width time.Duration) float64 {
	us := float64(width) / float64(time.Microsecond)
	return us * cmPerMicrosecond
}

// PulseWidth is the inverse of ToCentimeters, rounded to the nanosecond.
func PulseWidth(cm float64) time.Duration {
	return time.Duration(math.Round(cm / cmPerMicrosecond * float64(time.Microsecond)))
}
