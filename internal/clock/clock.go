// Package clock provides the node's monotonic millisecond counter and the
// interval predicate the scheduler gates work with.
package clock

import (
	"sync"
	"time"
)

// Millis is a free-running millisecond counter since boot. It wraps at 32 bits
// like a microcontroller tick counter, so all arithmetic on it is modular.
type Millis uint32

// Elapsed reports whether at least period has passed between last and now.
// Unsigned subtraction keeps the result correct when now has wrapped past last.
func Elapsed(now, last Millis, period time.Duration) bool {
	return uint32(now-last) >= uint32(period.Milliseconds())
}

// Clock is the time source every blocking wait on the node goes through.
type Clock interface {
	Now() Millis
	Sleep(d time.Duration)
}

// System is the wall clock of the running process.
type System struct {
	boot time.Time
}

func NewSystem() *System {
	return &System{boot: time.Now()}
}

func (s *System) Now() Millis {
	return Millis(uint64(time.Since(s.boot).Milliseconds()))
}

func (s *System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Fake is a manually driven Clock. Sleep advances the counter instantly.
type Fake struct {
	mu     sync.Mutex
	now    time.Duration
	sleeps []time.Duration
}

// NewFake returns a Fake positioned at start milliseconds.
func NewFake(start Millis) *Fake {
	return &Fake{now: time.Duration(start) * time.Millisecond}
}

func (f *Fake) Now() Millis {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Millis(uint64(f.now / time.Millisecond))
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += d
	f.sleeps = append(f.sleeps, d)
}

// Advance moves the counter forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += d
}

// Sleeps returns every duration passed to Sleep so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

// SleptAtLeast returns the sleeps that were d or longer.
func (f *Fake) SleptAtLeast(d time.Duration) []time.Duration {
	var out []time.Duration
	for _, s := range f.Sleeps() {
		if s >= d {
			out = append(out, s)
		}
	}
	return out
}
