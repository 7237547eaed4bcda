package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	// FromName is shown as the sender's display name.
	FromName string `json:"from_name"`
}

// SmtpTransport sends plain text mail, upgrading to TLS and authenticating with PLAIN
// when the server offers them.
type SmtpTransport struct {
	config SmtpConfig
}

func NewSmtpTransport(config SmtpConfig) SmtpTransport {
	if config.FromName == "" {
		config.FromName = "NotifyMe"
	}
	return SmtpTransport{config: config}
}

const smtpDialTimeout = 10 * time.Second

// Send holds the connection for at most as long as ctx lives, a server that stops
// answering mid-conversation has its connection closed under it.
func (t SmtpTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("%s <%s>", t.config.FromName, t.config.EmailAddress)
	mail.To = []string{msg.To}
	mail.Subject = msg.Subject
	mail.Text = []byte(msg.Body)
	raw, err := mail.Bytes()
	if err != nil {
		return Permanent(fmt.Errorf("smtp: render message: %w", err))
	}

	err = t.deliver(ctx, msg.To, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp: %w", errors.Join(ctxErr, err))
		}
		return classifySmtpError(err)
	}
	return nil
}

func (t SmtpTransport) deliver(ctx context.Context, to string, raw []byte) error {
	addr := net.JoinHostPort(t.config.Server, strconv.Itoa(t.config.Port))
	dialer := net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	client, err := smtp.NewClient(conn, t.config.Server)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		err = client.StartTLS(&tls.Config{ServerName: t.config.Server})
		if err != nil {
			return err
		}
	}
	// servers without AUTH (local relays, test servers) accept mail unauthenticated
	if ok, _ := client.Extension("AUTH"); ok {
		err = client.Auth(smtp.PlainAuth("", t.config.EmailAddress, t.config.Password, t.config.Server))
		if err != nil {
			return err
		}
	}

	if err = client.Mail(t.config.EmailAddress); err != nil {
		return err
	}
	if err = client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(raw); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// classifySmtpError marks 5xx replies (bad recipient, rejected content) as permanent,
// everything else (4xx, connection errors) is retried.
func classifySmtpError(err error) error {
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 {
		return Permanent(fmt.Errorf("smtp: %w", err))
	}
	return fmt.Errorf("smtp: %w", err)
}
