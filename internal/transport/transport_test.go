package transport

import (
	"sync/atomic"
	"testing"
	"time"
)

// fakeNow gives tests a hand-cranked wall clock.
type fakeNow struct {
	t time.Time
}

func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }
func (f *fakeNow) now() time.Time          { return f.t }

func newTestClock(duration float64) (*Clock, *fakeNow) {
	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := NewClock(duration)
	c.now = fn.now
	return c, fn
}

func TestClock_AdvancesWhilePlaying(t *testing.T) {
	c, fn := newTestClock(10)

	if c.Position() != 0 {
		t.Fatalf("initial position = %v, want 0", c.Position())
	}

	c.Play()
	fn.advance(1500 * time.Millisecond)

	if got := c.Position(); got != 1.5 {
		t.Fatalf("position after 1.5s = %v, want 1.5", got)
	}

	c.Pause()
	fn.advance(5 * time.Second)
	if got := c.Position(); got != 1.5 {
		t.Fatalf("position advanced while paused: %v", got)
	}
}

func TestClock_SeekClamps(t *testing.T) {
	c, _ := newTestClock(10)

	c.Seek(-5)
	if c.Position() != 0 {
		t.Fatalf("seek below zero = %v, want 0", c.Position())
	}

	c.Seek(42)
	if c.Position() != 10 {
		t.Fatalf("seek past duration = %v, want clamped 10", c.Position())
	}

	c.Seek(3.25)
	if c.Position() != 3.25 {
		t.Fatalf("seek = %v, want 3.25", c.Position())
	}
}

func TestClock_RateScalesPosition(t *testing.T) {
	c, fn := newTestClock(100)
	c.SetRate(2)
	c.Play()
	fn.advance(3 * time.Second)

	if got := c.Position(); got != 6 {
		t.Fatalf("position at 2x after 3s = %v, want 6", got)
	}
}

func TestClock_EndOfStream(t *testing.T) {
	c, fn := newTestClock(2)

	var fired atomic.Int32
	c.OnEnded(func() { fired.Add(1) })

	c.Play()
	fn.advance(5 * time.Second)

	if got := c.Position(); got != 2 {
		t.Fatalf("position past end = %v, want clamped to duration 2", got)
	}
	if !c.Ended() {
		t.Fatal("Ended() = false past end of track")
	}
	if c.Playing() {
		t.Fatal("still playing past end of track")
	}

	// Reading position repeatedly must not re-fire the callback.
	c.Position()
	c.Position()
	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := fired.Load(); got != 1 {
		t.Fatalf("ended callback fired %d times, want 1", got)
	}
}

func TestClock_SeekBackClearsEnded(t *testing.T) {
	c, fn := newTestClock(2)
	c.Play()
	fn.advance(3 * time.Second)
	if !c.Ended() {
		t.Fatal("expected ended state")
	}

	c.Seek(0.5)
	if c.Ended() {
		t.Fatal("Ended() still true after seeking back")
	}
	if c.Position() != 0.5 {
		t.Fatalf("position = %v, want 0.5", c.Position())
	}
}

func TestSnapshot_Restore(t *testing.T) {
	c, fn := newTestClock(60)
	c.Seek(12)
	c.SetRate(1.5)
	c.SetMuted(false)

	snap := TakeSnapshot(c)

	// Export-style mutation: mute, rewind, play.
	c.SetMuted(true)
	c.Seek(0)
	c.SetRate(1)
	c.Play()
	fn.advance(2 * time.Second)

	snap.Restore(c)

	if c.Playing() {
		t.Fatal("transport playing after restore")
	}
	if c.Position() != 12 {
		t.Fatalf("position = %v, want restored 12", c.Position())
	}
	if c.Rate() != 1.5 {
		t.Fatalf("rate = %v, want restored 1.5", c.Rate())
	}
	if c.Muted() {
		t.Fatal("muted after restore, want unmuted")
	}
}
