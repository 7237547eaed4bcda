package delivery

import (
	"strings"
)

// AlertTemplateName is the email_template row used for release alerts.
const AlertTemplateName = "movie_alert"

// Template renders a message from {{movieName}}, {{location}} and {{date}} placeholders.
type Template struct {
	Subject string
	Body    string
}

var DefaultAlertTemplate = Template{
	Subject: "Movie Alert: {{movieName}} is now available!",
	Body: "Dear Movie Fan,\n\n" +
		"Great news! The movie '{{movieName}}' is now available for booking in {{location}} on {{date}}.\n\n" +
		"Don't miss out - book your tickets now!\n\n" +
		"Best regards,\nNotifyMe Team",
}

func (t Template) Render(to, movie, location, date string) Message {
	replacer := strings.NewReplacer(
		"{{movieName}}", movie,
		"{{location}}", location,
		"{{date}}", date,
	)
	return Message{
		To:      to,
		Subject: replacer.Replace(t.Subject),
		Body:    replacer.Replace(t.Body),
	}
}
