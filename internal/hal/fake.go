package hal

import (
	"sync"
	"time"
)

// FakeOutput records every level written to it.
type FakeOutput struct {
	mu     sync.Mutex
	levels []bool
	Err    error
}

func (f *FakeOutput) Set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.levels = append(f.levels, high)
	return nil
}

// Levels returns the written levels in order.
func (f *FakeOutput) Levels() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.levels...)
}

// Level returns the last written level, false if nothing was written.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return false
	}
	return f.levels[len(f.levels)-1]
}

// FakeEcho plays back scripted pulse widths. A zero width means no echo.
// Once the script is exhausted Idle is returned for every call.
type FakeEcho struct {
	mu       sync.Mutex
	script   []time.Duration
	Idle     time.Duration
	timeouts []time.Duration
}

func NewFakeEcho(widths ...time.Duration) *FakeEcho {
	return &FakeEcho{script: widths}
}

// Queue appends widths to the script.
func (f *FakeEcho) Queue(widths ...time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, widths...)
}

func (f *FakeEcho) PulseIn(timeout time.Duration) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, timeout)

	w := f.Idle
	if len(f.script) > 0 {
		w = f.script[0]
		f.script = f.script[1:]
	}
	if w <= 0 || w > timeout {
		return 0, false
	}
	return w, true
}

// Timeouts returns the timeout passed to each PulseIn call.
func (f *FakeEcho) Timeouts() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.timeouts...)
}

// Calls returns how many readings were taken.
func (f *FakeEcho) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timeouts)
}
