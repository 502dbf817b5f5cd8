package persist

import (
	"sync/atomic"
	"time"
)

// Clock hands out strictly increasing epoch-millisecond stamps, even when
// several saves land in the same millisecond or the wall clock steps back.
type Clock struct {
	last atomic.Int64
	now  func() time.Time
}

// Next returns a stamp greater than every stamp returned or observed before.
func (c *Clock) Next() int64 {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	for {
		last := c.last.Load()
		t := now().UnixMilli()
		if t <= last {
			t = last + 1
		}
		if c.last.CompareAndSwap(last, t) {
			return t
		}
	}
}

// Observe moves the clock past ts, so saves that follow a load of a newer
// record still stamp later than it.
func (c *Clock) Observe(ts int64) {
	for {
		last := c.last.Load()
		if ts <= last || c.last.CompareAndSwap(last, ts) {
			return
		}
	}
}
