// Package clock provides the elapsed-time throttle used to rate limit signal
// publishing and periodic work in the translator.
package clock

import (
	"math/rand"
	"time"
)

const msPerSecond = 1000

// TimeFunc returns a monotonic timestamp in milliseconds. Zero is reserved
// for "never ticked", so implementations should not return it once running.
type TimeFunc func() uint64

var startup = time.Now()

// SystemTimeMs is the default time source: milliseconds since process start,
// offset by one so the first reading is never zero.
func SystemTimeMs() uint64 {
	return uint64(time.Since(startup).Milliseconds()) + 1
}

// FrequencyClock allows an action at most Frequency times per second.
type FrequencyClock struct {
	// Frequency in Hz. Zero means always allow.
	Frequency float64

	// LastTick is the time of the last allowed tick, zero if never ticked.
	LastTick uint64

	// TimeFunc overrides SystemTimeMs, mostly for tests.
	TimeFunc TimeFunc
}

// New returns a clock ticking at frequency Hz.
func New(frequency float64) FrequencyClock {
	return FrequencyClock{Frequency: frequency}
}

func (c *FrequencyClock) now() uint64 {
	if c.TimeFunc != nil {
		return c.TimeFunc()
	}
	return SystemTimeMs()
}

// Period returns the tick period in milliseconds, zero for an unthrottled clock.
func (c *FrequencyClock) Period() float64 {
	if c.Frequency <= 0 {
		return 0
	}
	return msPerSecond / c.Frequency
}

// Started reports whether the clock has ticked at least once.
func (c *FrequencyClock) Started() bool {
	return c.LastTick != 0
}

// Elapsed reports whether a period has passed since the last tick. An
// unstarted clock always reports true, unless stagger is set: then the clock
// is seeded with a random phase inside one period so many clocks created at
// the same moment do not fire together, and the call reports false.
func (c *FrequencyClock) Elapsed(stagger bool) bool {
	if c == nil || c.Frequency <= 0 {
		return true
	}

	period := c.Period()
	now := c.now()
	if !c.Started() {
		if stagger && period >= 1 {
			offset := uint64(rand.Int63n(int64(period)))
			if offset >= now {
				offset = now - 1
			}
			c.LastTick = now - offset
			return false
		}
		return true
	}

	if now < c.LastTick {
		return false
	}
	return float64(now-c.LastTick) >= period
}

// ConditionalTick stamps the clock and returns true when Elapsed allows it.
func (c *FrequencyClock) ConditionalTick(stagger bool) bool {
	if c == nil {
		return true
	}
	if !c.Elapsed(stagger) {
		return false
	}
	c.LastTick = c.now()
	return true
}

// Tick stamps the clock unconditionally, e.g. after an out-of-band send.
func (c *FrequencyClock) Tick() {
	c.LastTick = c.now()
}

// Reset forgets the last tick.
func (c *FrequencyClock) Reset() {
	c.LastTick = 0
}
