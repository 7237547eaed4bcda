package delivery

import (
	"context"
	"errors"
	"fmt"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/components/telemetry"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("notifyme.internal.delivery")

// ErrQuotaExceeded is returned when the hourly quota is used up, the message was dropped
// and not queued.
var ErrQuotaExceeded = errors.New("hourly email quota exceeded")

const (
	report_channel_quota   = "channel.quota"
	report_channel_send    = "channel.send"
	report_channel_sent    = "channel.sent"
	report_channel_dropped = "channel.dropped"
)

type Options struct {
	// Attempts is the number of tries per message, including the first.
	Attempts int
	// Backoff is slept between two tries.
	Backoff time.Duration
	// AttemptTimeout bounds a single try, the transport sees it as a ctx deadline.
	AttemptTimeout time.Duration
}

var DefaultOptions = Options{
	Attempts:       3,
	Backoff:        1000 * time.Millisecond,
	AttemptTimeout: 30 * time.Second,
}

// Channel sends messages through a transport within the hourly quota.
type Channel struct {
	transport Transport
	limiter   *RateLimiter
	options   Options
	sleep     chrono.SleepAPI
	tel       telemetry.API

	sent    *counter
	dropped *counter
}

func NewChannel(
	transport Transport,
	limiter *RateLimiter,
	options Options,
	sleep chrono.SleepAPI,
	tel telemetry.API,
) Channel {
	assert.NotNil(transport)
	assert.NotNil(limiter)
	assert.NotNil(sleep)
	assert.NotNil(tel)

	if options.Attempts <= 0 {
		options.Attempts = DefaultOptions.Attempts
	}
	if options.Backoff < 0 {
		options.Backoff = 0
	}
	if options.AttemptTimeout <= 0 {
		options.AttemptTimeout = DefaultOptions.AttemptTimeout
	}

	return Channel{
		transport: transport,
		limiter:   limiter,
		options:   options,
		sleep:     sleep,
		tel:       telemetry.NewScopedAPI("delivery", tel),
		sent:      &counter{},
		dropped:   &counter{},
	}
}

// Send delivers one message. It returns ErrQuotaExceeded without contacting the transport
// when the quota is used up, otherwise the last transport error once the attempts are
// exhausted. A failed send does not count against the quota. Send returns within
// Attempts * (AttemptTimeout + Backoff) even when the transport hangs.
func (c Channel) Send(ctx context.Context, recipient, subject, body string) error {
	ctx, span := tracer.Start(ctx, "Send", trace.WithAttributes(
		attribute.String("recipient", recipient),
	))
	defer span.End()

	reservation, ok := c.limiter.Reserve()
	if !ok {
		c.tel.ReportWarning(report_channel_quota, "hourly limit reached, dropping message", recipient, c.limiter.Limit())
		c.tel.ReportCount(report_channel_dropped, c.dropped.add())
		span.SetStatus(codes.Error, "quota exceeded")
		return ErrQuotaExceeded
	}

	msg := Message{To: recipient, Subject: subject, Body: body}
	var err error
	for msg.Attempt = 1; msg.Attempt <= c.options.Attempts; msg.Attempt++ {
		err = c.attempt(ctx, msg)
		if err == nil {
			c.tel.ReportDebug("message sent", recipient, msg.Attempt)
			c.tel.ReportCount(report_channel_sent, c.sent.add())
			span.SetAttributes(attribute.Int("attempts", msg.Attempt))
			return nil
		}
		c.tel.ReportDebug("send attempt failed", recipient, msg.Attempt, err)
		if IsPermanent(err) || msg.Attempt == c.options.Attempts {
			break
		}
		if sleepErr := c.sleep.Sleep(ctx, c.options.Backoff); sleepErr != nil {
			err = errors.Join(err, sleepErr)
			break
		}
	}

	reservation.Release()
	attempts := min(msg.Attempt, c.options.Attempts)
	c.tel.ReportWarning(report_channel_send, recipient, attempts, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "failed to send email")
	return fmt.Errorf("send to %s failed after %d attempt(s): %w", recipient, attempts, err)
}

func (c Channel) attempt(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.AttemptTimeout)
	defer cancel()
	return c.transport.Send(ctx, msg)
}

// Limiter exposes the quota so the scheduler can reset it.
func (c Channel) Limiter() *RateLimiter {
	return c.limiter
}

type counter struct {
	value atomic.Int64
}

func (c *counter) add() int64 {
	return c.value.Add(1)
}
