package alerts

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/resend/resend-go/v2"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends email through AWS SES.
type SESMailer struct {
	client SESAPI
	logger *slog.Logger
}

var _ Mailer = (*SESMailer)(nil)

// NewSESMailer creates an SES mailer.
func NewSESMailer(client SESAPI, logger *slog.Logger) *SESMailer {
	return &SESMailer{client: client, logger: logger}
}

func (m *SESMailer) SendEmail(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	var body sestypes.Body
	if msg.HTML != "" {
		body.Html = &sestypes.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		body.Text = &sestypes.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &sestypes.Destination{ToAddresses: msg.To},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}

	m.logger.Debug("email sent via ses",
		"message_id", aws.ToString(out.MessageId),
		"to", strings.Join(msg.To, ","),
	)
	return nil
}

// ResendEmails is the subset of the Resend client used here.
type ResendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer sends email through the Resend API.
type ResendMailer struct {
	emails ResendEmails
	logger *slog.Logger
}

var _ Mailer = (*ResendMailer)(nil)

// NewResendMailer creates a Resend mailer from an API key.
func NewResendMailer(apiKey string, logger *slog.Logger) *ResendMailer {
	return NewResendMailerWithClient(resend.NewClient(apiKey).Emails, logger)
}

// NewResendMailerWithClient creates a Resend mailer around an existing client.
func NewResendMailerWithClient(emails ResendEmails, logger *slog.Logger) *ResendMailer {
	return &ResendMailer{emails: emails, logger: logger}
}

// SendEmail sends msg.
func (m *ResendMailer) SendEmail(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	out, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("resend send email: %w", err)
	}

	m.logger.Debug("email sent via resend",
		"email_id", out.Id,
		"to", strings.Join(msg.To, ","),
	)
	return nil
}

type emailView struct {
	model.Alert
	Headline string
	Color    string
	Spend    string
	Limit    string
	Remain   string
	When     string
}

var emailHTML = htmltemplate.Must(htmltemplate.New("alert").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Budget Alert</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f5f5f5; padding: 20px;">
<div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px;">
  <div style="background-color: {{.Color}}; color: #ffffff; padding: 20px; text-align: center;">
    <h1 style="margin: 0;">Budget Alert</h1>
    <p style="margin: 5px 0 0 0;">{{.Headline}}</p>
  </div>
  <div style="padding: 30px;">
    <h2 style="margin-top: 0;">{{.BudgetName}}</h2>
    <table style="width: 100%;">
      <tr><td>Current Utilization</td><td style="color: {{.Color}}; font-weight: bold;">{{printf "%.2f" .CurrentUtilization}}%</td></tr>
      <tr><td>Current Spend</td><td>{{.Spend}}</td></tr>
      <tr><td>Budget Limit</td><td>{{.Limit}}</td></tr>
      <tr><td>Remaining Budget</td><td>{{.Remain}}</td></tr>
      <tr><td>Alert Threshold</td><td>{{.Threshold}}%</td></tr>
      <tr><td>Severity</td><td style="color: {{.Color}}; font-weight: bold;">{{.Severity}}</td></tr>
    </table>
    {{if .Services}}<p><strong>Monitored Services:</strong> {{range $i, $s := .Services}}{{if $i}}, {{end}}{{$s}}{{end}}</p>{{end}}
    <p style="color: #666666;">Alert Time: {{.When}}<br>Budget Type: {{.BudgetType}}<br>Budget ID: {{.BudgetID}}</p>
  </div>
</div>
</body>
</html>
`))

var emailText = texttemplate.Must(texttemplate.New("alert").Parse(`BUDGET ALERT - {{.BudgetName}}

Alert Type: {{.AlertType}}
Current Utilization: {{printf "%.2f" .CurrentUtilization}}%
Current Spend: {{.Spend}}
Budget Limit: {{.Limit}}
Remaining Budget: {{.Remain}}
Alert Threshold: {{.Threshold}}%
Severity: {{.Severity}}
Alert Time: {{.When}}
{{if .Services}}
Monitored Services: {{range $i, $s := .Services}}{{if $i}}, {{end}}{{$s}}{{end}}
{{end}}`))

func emailColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "#d32f2f"
	case model.SeverityHigh:
		return "#f57c00"
	case model.SeverityMedium:
		return "#fbc02d"
	default:
		return "#388e3c"
	}
}

// renderEmail builds the alert email for the given sender and recipient.
func renderEmail(alert model.Alert, from, to string) (EmailMessage, error) {
	view := emailView{
		Alert:    alert,
		Headline: alertHeadline(alert.AlertType),
		Color:    emailColor(alert.Severity),
		Spend:    formatMoney(alert.CurrentSpend, alert.Currency),
		Limit:    formatMoney(alert.BudgetLimit, alert.Currency),
		Remain:   formatMoney(alert.RemainingBudget, alert.Currency),
		When:     alert.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"),
	}

	var html, text bytes.Buffer
	if err := emailHTML.Execute(&html, view); err != nil {
		return EmailMessage{}, fmt.Errorf("render html email: %w", err)
	}
	if err := emailText.Execute(&text, view); err != nil {
		return EmailMessage{}, fmt.Errorf("render text email: %w", err)
	}

	return EmailMessage{
		From:    from,
		To:      []string{to},
		Subject: fmt.Sprintf("Budget Alert: %s - %s", alert.BudgetName, alert.AlertType),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()),
	}, nil
}
