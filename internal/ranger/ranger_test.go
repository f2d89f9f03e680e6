package ranger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
	"github.com/LeonardoBeccarini/smartdustbin/internal/hal"
)

func newTestRanger(timeout time.Duration, widths ...time.Duration) (*Ranger, *hal.FakeOutput, *hal.FakeEcho, *clock.Fake) {
	trig := &hal.FakeOutput{}
	echo := hal.NewFakeEcho(widths...)
	clk := clock.NewFake(0)
	r := New(Config{Name: "fill", EchoTimeout: timeout, MinCM: 0.5, MaxCM: 400}, trig, echo, clk)
	return r, trig, echo, clk
}

func TestMeasureValid(t *testing.T) {
	r, trig, echo, clk := newTestRanger(30*time.Millisecond, PulseWidth(10))

	d, err := r.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, d, 1e-6)

	assert.Equal(t, []bool{false, true, false}, trig.Levels(), "low, high, low trigger sequence")
	assert.Equal(t, []time.Duration{2 * time.Microsecond, 10 * time.Microsecond}, clk.Sleeps())
	assert.Equal(t, []time.Duration{30 * time.Millisecond}, echo.Timeouts())
}

func TestMeasureInvalid(t *testing.T) {
	tests := []struct {
		name  string
		width time.Duration
		want  error
	}{
		{"no echo", 0, ErrEchoTimeout},
		{"echo longer than timeout", 16 * time.Millisecond, ErrEchoTimeout},
		{"too close", PulseWidth(0.3), ErrOutOfRange},
		{"too far", PulseWidth(401), ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _, _ := newTestRanger(15*time.Millisecond, tt.width)
			if tt.name == "too far" {
				r.cfg.EchoTimeout = 30 * time.Millisecond
			}
			_, err := r.Measure()
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestMeasureBounds(t *testing.T) {
	r, _, echo, _ := newTestRanger(30 * time.Millisecond)
	echo.Queue(PulseWidth(0.51), PulseWidth(399.9))

	d, err := r.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 0.51, d, 1e-6)

	d, err = r.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 399.9, d, 1e-6)
}

func TestMeasureTriggerFailure(t *testing.T) {
	r, trig, echo, _ := newTestRanger(30*time.Millisecond, PulseWidth(10))
	trig.Err = errors.New("line busy")

	_, err := r.Measure()
	assert.Error(t, err)
	assert.Zero(t, echo.Calls(), "no echo wait without a trigger pulse")
}

func TestToCentimeters(t *testing.T) {
	assert.InDelta(t, 17.0, ToCentimeters(time.Millisecond), 1e-9)
	assert.InDelta(t, 42.0, ToCentimeters(PulseWidth(42)), 1e-6)
}
