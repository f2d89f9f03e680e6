package hal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeEchoPlaysScriptThenIdle(t *testing.T) {
	e := NewFakeEcho(600*time.Microsecond, 0, 40*time.Millisecond)
	e.Idle = 1 * time.Millisecond

	w, ok := e.PulseIn(30 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, 600*time.Microsecond, w)

	_, ok = e.PulseIn(30 * time.Millisecond)
	assert.False(t, ok, "zero width is a timeout")

	_, ok = e.PulseIn(30 * time.Millisecond)
	assert.False(t, ok, "pulse longer than timeout is a timeout")

	w, ok = e.PulseIn(15 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, time.Millisecond, w)

	assert.Equal(t, 4, e.Calls())
	assert.Equal(t, 15*time.Millisecond, e.Timeouts()[3])
}

func TestFakeOutputRecordsLevels(t *testing.T) {
	var o FakeOutput
	assert.False(t, o.Level())
	require.NoError(t, o.Set(true))
	require.NoError(t, o.Set(false))
	assert.Equal(t, []bool{true, false}, o.Levels())

	o.Err = errors.New("line busy")
	assert.Error(t, o.Set(true))
	assert.Len(t, o.Levels(), 2)
}
