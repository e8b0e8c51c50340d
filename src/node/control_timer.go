package node

import (
	"math/rand"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer wakes the dialer. Each tick must be followed by a reset for
// the next one to come.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the timer
	stopCh       chan struct{}      //receives instruction to stop the timer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewRandomControlTimer returns a timer firing between d and 2d after each
// reset, so nodes started together do not dial in lockstep.
func NewRandomControlTimer() *ControlTimer {

	randomTimeout := func(d time.Duration) <-chan time.Time {
		if d == 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % d)
		return time.After(d + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Run drives the timer until Shutdown.
func (c *ControlTimer) Run(init time.Duration) {
	timer := c.timerFactory(init)
	for {
		select {
		case <-timer:
			timer = nil
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = c.timerFactory(t)
		case <-c.stopCh:
			timer = nil
		case <-c.shutdownCh:
			return
		}
	}
}

// Reset arms the timer. It must not be called from the goroutine reading
// tickCh while a tick may be pending, except right after receiving one.
func (c *ControlTimer) Reset(d time.Duration) {
	select {
	case c.resetCh <- d:
	case <-c.shutdownCh:
	}
}

// Shutdown stops Run.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
