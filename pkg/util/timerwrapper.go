package util

import (
	"time"
)

// This Wrapper class it to work around the issue with time.Timer.Reset(), mentioned below:
// https://github.com/golang/go/issues/11513
//
// timer.C is buffered, so if the timer has just expired,
// the newly reset timer can actually trigger immediately.
//
// The wrapper also remembers when it is due so that a caller tracking many
// deadlines can keep the earliest one armed.
type TimerWrapper struct {
	t       *time.Timer
	stopped bool
	due     time.Time
}

func NewTimerWrapper() *TimerWrapper {
	t := &TimerWrapper{
		t:       time.NewTimer(time.Hour),
		stopped: true,
	}
	t.t.Stop()
	return t
}

// GetTimeoutCh returns nil while stopped, so a select on it blocks.
func (t *TimerWrapper) GetTimeoutCh() <-chan time.Time {
	if t.stopped {
		return nil
	}
	return t.t.C
}

func (t *TimerWrapper) IsStopped() bool {
	return t.stopped
}

func (t *TimerWrapper) Due() time.Time {
	return t.due
}

func (t *TimerWrapper) Stop() {
	if t.stopped {
		return
	}
	// To prevent the timer firing after a call to Stop,
	// check the return value and drain the channel.
	if !t.t.Stop() {
		select {
		case <-t.t.C:
		default:
		}
	}
	t.stopped = true
	t.due = time.Time{}
}

func (t *TimerWrapper) Reset(d time.Duration) {
	t.Stop()
	t.t.Reset(d)
	t.stopped = false
	t.due = time.Now().Add(d)
}

// ResetAt arms the timer for deadline unless it is already armed for an
// earlier time.
func (t *TimerWrapper) ResetAt(deadline time.Time) {
	if !t.stopped && !t.due.After(deadline) {
		return
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	t.Reset(d)
	t.due = deadline
}
