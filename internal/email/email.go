package email

import (
	"fmt"
	"html"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sender is the part of *sendgrid.Client the service uses
type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailService handles sending digests via SendGrid
type EmailService struct {
	apiKey    string
	fromEmail string
	client    sender
}

// NewEmailService creates a new email service instance
func NewEmailService(apiKey, fromEmail string) *EmailService {
	if fromEmail == "" {
		fromEmail = "digest@chatdigest.local"
	}
	es := &EmailService{
		apiKey:    apiKey,
		fromEmail: fromEmail,
	}
	if apiKey != "" {
		es.client = sendgrid.NewSendClient(apiKey)
	}
	return es
}

// SendDigest mails a Markdown digest to a single recipient. The HTML part
// carries the same Markdown preformatted so it renders legibly everywhere.
func (es *EmailService) SendDigest(to, subject, markdown string) error {
	if es.apiKey == "" || es.client == nil {
		return fmt.Errorf("SendGrid API key not configured")
	}
	if to == "" {
		return fmt.Errorf("no digest recipient configured")
	}

	message := BuildDigestMessage(es.fromEmail, to, subject, markdown)

	response, err := es.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}

// BuildDigestMessage assembles the SendGrid message for a digest
func BuildDigestMessage(fromEmail, to, subject, markdown string) *mail.SGMailV3 {
	from := mail.NewEmail("Chat Digest", fromEmail)
	recipient := mail.NewEmail("", to)
	htmlBody := `<pre style="font-family: ui-monospace, monospace; white-space: pre-wrap">` + html.EscapeString(markdown) + `</pre>`
	return mail.NewSingleEmail(from, subject, recipient, markdown, htmlBody)
}
