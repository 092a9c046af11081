package typing

import (
	"sort"
	"sync"
	"time"
)

// Coordinator tracks typing state in both directions: it debounces the
// local user's keystrokes into one typing burst, and it tracks which
// remote participants are typing in the active room.
//
// Remote entries expire on a local timer even if the remote side never
// sends the closing false event, so a lost frame cannot pin a
// "typing..." banner forever.
type Coordinator struct {
	mu sync.Mutex

	emit     func(isTyping bool)
	debounce time.Duration
	expiry   time.Duration

	active     bool
	localTimer *time.Timer
	timerSeq   uint64

	remote map[string]*time.Timer
	closed bool
}

// New creates a coordinator. emit is called with true at the start of a
// local typing burst and false when the burst ends; it must not call
// back into the coordinator.
func New(emit func(isTyping bool), debounce, expiry time.Duration) *Coordinator {
	return &Coordinator{
		emit:     emit,
		debounce: debounce,
		expiry:   expiry,
		remote:   make(map[string]*time.Timer),
	}
}

// Keystroke registers local typing activity. The first keystroke of a
// burst emits typing=true; every keystroke re-arms the debounce timer,
// and its expiry emits typing=false. A burst therefore costs two
// outbound events no matter how many keys were pressed.
func (c *Coordinator) Keystroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if !c.active {
		c.active = true
		c.emit(true)
	}

	if c.localTimer != nil {
		c.localTimer.Stop()
	}
	// The sequence tag keeps a superseded timer harmless: Stop can
	// return false with the old callback already queued on the mutex,
	// and that fire must not end the re-armed burst.
	c.timerSeq++
	seq := c.timerSeq
	c.localTimer = time.AfterFunc(c.debounce, func() { c.endBurst(seq) })
}

// Pause ends the local typing burst immediately, emitting typing=false
// if a burst was active. Called after a message is sent.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timerSeq++
	if c.localTimer != nil {
		c.localTimer.Stop()
		c.localTimer = nil
	}
	if c.active && !c.closed {
		c.active = false
		c.emit(false)
	}
}

func (c *Coordinator) endBurst(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.timerSeq {
		// superseded by a later keystroke, Pause, or Reset
		return
	}
	if c.active && !c.closed {
		c.active = false
		c.emit(false)
	}
}

// OnIndicator applies a remote typing event for the active room.
func (c *Coordinator) OnIndicator(username string, isTyping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if t, ok := c.remote[username]; ok {
		t.Stop()
		delete(c.remote, username)
	}

	if isTyping {
		c.remote[username] = time.AfterFunc(c.expiry, func() {
			c.expire(username)
		})
	}
}

func (c *Coordinator) expire(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.remote, username)
}

// Typing returns a sorted snapshot of remote users currently typing.
func (c *Coordinator) Typing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.remote))
	for name := range c.remote {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears remote state and cancels the local burst without
// emitting anything. Used when the active room changes.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Stop tears the coordinator down; no further emits fire.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.closed = true
}

func (c *Coordinator) resetLocked() {
	c.timerSeq++
	if c.localTimer != nil {
		c.localTimer.Stop()
		c.localTimer = nil
	}
	c.active = false
	for _, t := range c.remote {
		t.Stop()
	}
	c.remote = make(map[string]*time.Timer)
}
