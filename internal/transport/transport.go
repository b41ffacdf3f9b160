// Package transport defines the playback clock contract the resolver
// and export pipeline are driven by. The agent never decodes audio;
// anything that can report a position and duration and accept
// play/pause/seek satisfies the contract. The live preview's audio
// element fills this role in the browser, Clock fills it for real-time
// capture inside the agent.
package transport

import (
	"sync"
	"time"
)

// Transport is the clock source contract. Implementations must keep
// Position within [0, Duration] and fire the ended callback exactly
// once per run past the end of the track.
type Transport interface {
	Position() float64
	Duration() float64
	Play()
	Pause()
	Seek(pos float64)
	Playing() bool
	Ended() bool
	OnEnded(fn func())

	// Rate and mute state exist so the export pipeline can snapshot and
	// restore the preview's audio state around a capture run.
	Rate() float64
	SetRate(r float64)
	Muted() bool
	SetMuted(m bool)
}

// Snapshot captures the externally visible transport state so it can be
// restored after an export run.
type Snapshot struct {
	Position float64
	Rate     float64
	Muted    bool
}

// TakeSnapshot reads the restorable state from a transport.
func TakeSnapshot(t Transport) Snapshot {
	return Snapshot{Position: t.Position(), Rate: t.Rate(), Muted: t.Muted()}
}

// Restore pauses the transport and puts back the snapshotted state.
func (s Snapshot) Restore(t Transport) {
	t.Pause()
	t.Seek(s.Position)
	t.SetRate(s.Rate)
	t.SetMuted(s.Muted)
}

// Clock is a wall-clock transport for a track of known duration. While
// playing, Position advances with real time scaled by the playback
// rate. It backs real-time capture mode.
type Clock struct {
	mu       sync.Mutex
	duration float64
	base     float64   // position when playback last started or seeked
	startAt  time.Time // wall time playback last started
	playing  bool
	ended    bool
	rate     float64
	muted    bool
	onEnded  []func()

	now func() time.Time // injectable for tests
}

// NewClock creates a stopped clock at position 0.
func NewClock(duration float64) *Clock {
	return &Clock{duration: duration, rate: 1.0, now: time.Now}
}

func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) positionLocked() float64 {
	pos := c.base
	if c.playing {
		pos += c.now().Sub(c.startAt).Seconds() * c.rate
	}
	if pos >= c.duration {
		pos = c.duration
		c.markEndedLocked()
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

func (c *Clock) markEndedLocked() {
	if c.ended {
		return
	}
	c.ended = true
	c.playing = false
	c.base = c.duration
	// Callbacks run outside the lock so they may call back into the
	// transport.
	for _, fn := range c.onEnded {
		go fn()
	}
}

func (c *Clock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing || c.ended {
		return
	}
	c.playing = true
	c.startAt = c.now()
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.base = c.positionLocked()
	c.playing = false
}

func (c *Clock) Seek(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if pos > c.duration {
		pos = c.duration
	}
	c.base = pos
	c.startAt = c.now()
	if pos < c.duration {
		c.ended = false
	}
}

func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Clock) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positionLocked()
	return c.ended
}

func (c *Clock) OnEnded(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = append(c.onEnded, fn)
}

func (c *Clock) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

func (c *Clock) SetRate(r float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r <= 0 {
		return
	}
	c.base = c.positionLocked()
	c.startAt = c.now()
	c.rate = r
}

func (c *Clock) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Clock) SetMuted(m bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = m
}
