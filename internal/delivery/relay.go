package delivery

import (
	"context"
	"fmt"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/telemetry"
	"time"

	"github.com/go-resty/resty/v2"
)

type RelayConfig struct {
	// Url receives a POST with a json body of {"to", "subject", "text"}.
	Url   string `json:"url"`
	Token string `json:"token"`
}

// RelayTransport hands messages to an http mail relay.
type RelayTransport struct {
	http *resty.Client
	url  string
}

func NewRelayTransport(config RelayConfig, tel telemetry.API) RelayTransport {
	assert.NotEmptyStr(config.Url)
	assert.NotNil(tel)

	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetHeader("content-type", "application/json")
	if config.Token != "" {
		client.SetAuthToken(config.Token)
	}
	telemetry.InstrumentResty(client, telemetry.NewScopedAPI("mail_relay", tel))

	return RelayTransport{http: client, url: config.Url}
}

type relayRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (t RelayTransport) Send(ctx context.Context, msg Message) error {
	res, err := t.http.R().
		SetContext(ctx).
		SetBody(relayRequest{To: msg.To, Subject: msg.Subject, Text: msg.Body}).
		Post(t.url)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	switch {
	case res.StatusCode() == 429 || res.StatusCode() >= 500:
		return fmt.Errorf("relay: %s", res.Status())
	case res.IsError():
		return Permanent(fmt.Errorf("relay: %s: %s", res.Status(), res.String()))
	}
	return nil
}
