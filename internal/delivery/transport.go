package delivery

import (
	"context"
	"errors"
	"notifyme-backend/internal/components/telemetry"
)

// Message is one outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
	// Attempt is 1 on the first try and increases with every retry.
	Attempt int
}

// Transport hands a message to a mail system. Returning a Permanent error stops retries.
//
// note: fault injection point
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string {
	return e.err.Error()
}

func (e permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying, for example a rejected recipient.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var perm permanentError
	return errors.As(err, &perm)
}

const report_log_transport_send = "log_transport.send"

// LogTransport writes messages to telemetry instead of sending them, it is the transport
// used in development.
type LogTransport struct {
	tel telemetry.API
}

func NewLogTransport(tel telemetry.API) LogTransport {
	return LogTransport{tel: telemetry.NewScopedAPI("mail", tel)}
}

func (t LogTransport) Send(ctx context.Context, msg Message) error {
	t.tel.ReportDebug(report_log_transport_send, msg.To, msg.Subject, msg.Body)
	return nil
}
