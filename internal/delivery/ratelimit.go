package delivery

import (
	"sync"
)

// RateLimiter holds the hourly send counter shared by every delivery in the process. The
// counter only goes back to zero when Reset is called, which the scheduler does hourly.
type RateLimiter struct {
	mutex sync.Mutex
	limit int
	count int
	// epoch changes on every Reset so that reservations taken before a reset do not
	// release into the new window.
	epoch uint64
}

func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limit: limit}
}

// Reservation is one slot of the hourly quota.
type Reservation struct {
	limiter *RateLimiter
	epoch   uint64
	once    *sync.Once
}

// Reserve takes a slot if the counter is below the limit. The check and the increment
// happen under one lock.
func (l *RateLimiter) Reserve() (Reservation, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.count >= l.limit {
		return Reservation{}, false
	}
	l.count++
	return Reservation{limiter: l, epoch: l.epoch, once: &sync.Once{}}, true
}

// Release gives the slot back, it is a no-op when called twice or after a Reset.
func (r Reservation) Release() {
	if r.limiter == nil {
		return
	}
	r.once.Do(func() {
		l := r.limiter
		l.mutex.Lock()
		defer l.mutex.Unlock()
		if l.epoch == r.epoch && l.count > 0 {
			l.count--
		}
	})
}

func (l *RateLimiter) Reset() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.count = 0
	l.epoch++
}

func (l *RateLimiter) Count() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.count
}

func (l *RateLimiter) Limit() int {
	return l.limit
}
