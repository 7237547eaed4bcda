package delivery

import (
	"context"
	"errors"
	"notifyme-backend/internal/components/chrono/chronotest"
	"notifyme-backend/internal/components/telemetry/telemetrytest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport fails the first `failures` sends with err.
type fakeTransport struct {
	mutex    sync.Mutex
	failures int
	err      error
	sent     []Message
	attempts int
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func setup(limit int, transport Transport) (Channel, *chronotest.Clock, *telemetrytest.Recorder) {
	clock := chronotest.NewClock(time.Date(2026, time.March, 16, 9, 0, 0, 0, time.UTC))
	tel := telemetrytest.NewRecorder()
	channel := NewChannel(transport, NewRateLimiter(limit), DefaultOptions, clock, tel)
	return channel, clock, tel
}

func TestHourlyQuota(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	channel, _, tel := setup(3, transport)

	for i := 0; i < 3; i++ {
		require.NoError(t, channel.Send(ctx, "a@x.com", "subject", "body"))
	}
	require.Equal(t, 3, channel.Limiter().Count())

	// the 4th send is dropped and does not count
	err := channel.Send(ctx, "a@x.com", "subject", "body")
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.Equal(t, 3, channel.Limiter().Count())
	require.Len(t, transport.sent, 3)
	require.Len(t, tel.Find(telemetrytest.Warning, report_channel_quota), 1)

	channel.Limiter().Reset()
	require.Equal(t, 0, channel.Limiter().Count())
	require.NoError(t, channel.Send(ctx, "a@x.com", "subject", "body"))
	require.Equal(t, 1, channel.Limiter().Count())
}

func TestQuotaUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	channel, _, _ := setup(10, transport)

	var (
		wg      sync.WaitGroup
		mutex   sync.Mutex
		dropped int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := channel.Send(ctx, "a@x.com", "subject", "body")
			if errors.Is(err, ErrQuotaExceeded) {
				mutex.Lock()
				dropped++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 40, dropped)
	require.Len(t, transport.sent, 10)
	require.Equal(t, 10, channel.Limiter().Count())
}

func TestRetriesWithFixedBackoff(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{failures: 2, err: errors.New("connection reset")}
	channel, clock, _ := setup(5, transport)

	require.NoError(t, channel.Send(ctx, "a@x.com", "subject", "body"))
	require.Equal(t, 3, transport.attempts)
	require.Equal(t, 3, transport.sent[0].Attempt)
	require.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
	require.Equal(t, 1, channel.Limiter().Count())
}

func TestExhaustedRetriesSurfaceError(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection refused")
	transport := &fakeTransport{failures: 10, err: cause}
	channel, clock, tel := setup(5, transport)

	err := channel.Send(ctx, "a@x.com", "subject", "body")
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrQuotaExceeded)
	require.Equal(t, 3, transport.attempts)
	// no backoff after the last attempt
	require.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
	// a failed send gives its quota slot back
	require.Equal(t, 0, channel.Limiter().Count())
	require.Len(t, tel.Find(telemetrytest.Warning, report_channel_send), 1)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("550 mailbox unavailable")
	transport := &fakeTransport{failures: 10, err: Permanent(cause)}
	channel, clock, _ := setup(5, transport)

	err := channel.Send(ctx, "a@x.com", "subject", "body")
	require.ErrorIs(t, err, cause)
	require.True(t, IsPermanent(err))
	require.Equal(t, 1, transport.attempts)
	require.Empty(t, clock.Sleeps())
}

func TestReservationRelease(t *testing.T) {
	limiter := NewRateLimiter(2)

	first, ok := limiter.Reserve()
	require.True(t, ok)
	second, ok := limiter.Reserve()
	require.True(t, ok)
	_, ok = limiter.Reserve()
	require.False(t, ok)

	first.Release()
	first.Release()
	require.Equal(t, 1, limiter.Count())

	// releasing into a new window must not free a slot that was never taken in it
	limiter.Reset()
	_, ok = limiter.Reserve()
	require.True(t, ok)
	second.Release()
	require.Equal(t, 1, limiter.Count())

	Reservation{}.Release()
}

func TestZeroLimitDropsEverything(t *testing.T) {
	transport := &fakeTransport{}
	channel, _, _ := setup(0, transport)
	require.ErrorIs(t, channel.Send(context.Background(), "a@x.com", "s", "b"), ErrQuotaExceeded)
	require.Empty(t, transport.sent)
}

func TestDefaultAlertTemplate(t *testing.T) {
	msg := DefaultAlertTemplate.Render("a@x.com", "Dune", "Chennai", "2026-03-21")
	require.Equal(t, "a@x.com", msg.To)
	require.Equal(t, "Movie Alert: Dune is now available!", msg.Subject)
	require.Equal(t, "Dear Movie Fan,\n\n"+
		"Great news! The movie 'Dune' is now available for booking in Chennai on 2026-03-21.\n\n"+
		"Don't miss out - book your tickets now!\n\n"+
		"Best regards,\nNotifyMe Team", msg.Body)

	custom := Template{Subject: "{{movieName}} @ {{location}}", Body: "{{date}} {{date}}"}
	msg = custom.Render("b@x.com", "Arrival", "Pune", "2026-04-01")
	require.Equal(t, "Arrival @ Pune", msg.Subject)
	require.Equal(t, "2026-04-01 2026-04-01", msg.Body)
}

// stallingTransport answers only when its context ends.
type stallingTransport struct {
	attempts atomic.Int32
}

func (s *stallingTransport) Send(ctx context.Context, msg Message) error {
	s.attempts.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestAttemptTimeoutBoundsSend(t *testing.T) {
	ctx := context.Background()
	clock := chronotest.NewClock(time.Date(2026, time.March, 16, 9, 0, 0, 0, time.UTC))
	transport := &stallingTransport{}
	channel := NewChannel(
		transport,
		NewRateLimiter(5),
		Options{Attempts: 2, Backoff: time.Second, AttemptTimeout: 50 * time.Millisecond},
		clock,
		telemetrytest.NewRecorder(),
	)

	start := time.Now()
	err := channel.Send(ctx, "a@x.com", "subject", "body")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, int32(2), transport.attempts.Load())
	require.Equal(t, 0, channel.Limiter().Count())
}
