// Package chronotest provides a manual clock implementing chrono.TimeAPI and chrono.SleepAPI.
package chronotest

import (
	"context"
	"sync"
	"time"
)

// Clock only moves when Sleep or Advance is called, every Sleep is recorded.
type Clock struct {
	mutex    sync.Mutex
	now      time.Time
	location *time.Location
	sleeps   []time.Duration
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now, location: now.Location()}
}

func (c *Clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *Clock) Location() *time.Location {
	return c.location
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *Clock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every duration passed to Sleep in order.
func (c *Clock) Sleeps() []time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
