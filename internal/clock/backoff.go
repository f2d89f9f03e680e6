package clock

import "time"

// Sleeper is the part of Clock retry loops need.
type Sleeper interface {
	Sleep(d time.Duration)
}

// BackoffTimer adapts a Sleeper to backoff.Timer so retry waits go through
// the node clock instead of a runtime timer.
type BackoffTimer struct {
	sleeper Sleeper
	c       chan time.Time
}

func NewBackoffTimer(s Sleeper) *BackoffTimer {
	return &BackoffTimer{sleeper: s, c: make(chan time.Time, 1)}
}

func (t *BackoffTimer) Start(d time.Duration) {
	t.sleeper.Sleep(d)
	t.c <- time.Now()
}

func (t *BackoffTimer) Stop() {}

func (t *BackoffTimer) C() <-chan time.Time { return t.c }
