package notification

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"medication-reminder-backend/config"
)

// MailClient is the subset of the SendGrid client the alerter needs.
type MailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

const missedPlain = `Hello,

You missed your {{.MedicationName}}{{if .ScheduledTime}} scheduled at {{.ScheduledTime}}{{end}}.
Please take it now if possible.
`

var missedPlainTemplate = template.Must(template.New("missed").Parse(missedPlain))

// EmailAlerter e-mails missed-dose alerts through SendGrid.
type EmailAlerter struct {
	client   MailClient
	fromName string
	fromAddr string
}

// NewEmailAlerter returns nil when e-mail is not configured.
func NewEmailAlerter(cfg config.EmailConfig) *EmailAlerter {
	if !cfg.Enabled() {
		return nil
	}
	return &EmailAlerter{
		client:   sendgrid.NewSendClient(cfg.SendGridAPIKey),
		fromName: cfg.FromName,
		fromAddr: cfg.FromAddress,
	}
}

// SendMissedAlert mails one alert to address.
func (e *EmailAlerter) SendMissedAlert(ctx context.Context, address string, alert MissedAlert) error {
	message := mail.NewV3Mail()
	message.From = mail.NewEmail(e.fromName, e.fromAddr)
	message.Subject = "Medication missed: " + alert.MedicationName

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", address))
	message.AddPersonalizations(personalization)

	textContent := &bytes.Buffer{}
	if err := missedPlainTemplate.Execute(textContent, alert); err != nil {
		return fmt.Errorf("while templating plain-text email content: %w", err)
	}
	message.AddContent(mail.NewContent("text/plain", textContent.String()))

	resp, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("while sending mail through SendGrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2XX response while sending mail through SendGrid: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
