// Package mailer delivers payment reminders by e-mail through SendGrid.
package mailer

import (
	"context"
	"fmt"

	"github.com/rentdesk/rentdesk-api/internal/domain"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("sendgrid")

const fromName = "RentDesk"

// Mailer sends notification records as plain-text e-mails.
type Mailer struct {
	client  *sendgrid.Client
	from    *mail.Email
	sandbox bool
	logger  *zap.Logger
}

// New creates a SendGrid-backed mailer. In sandbox mode SendGrid validates
// the request without delivering it.
func New(apiKey, fromEmail string, sandbox bool, logger *zap.Logger) *Mailer {
	return &Mailer{
		client:  sendgrid.NewSendClient(apiKey),
		from:    mail.NewEmail(fromName, fromEmail),
		sandbox: sandbox,
		logger:  logger,
	}
}

// SendReminder e-mails n.Message to n.To.
func (m *Mailer) SendReminder(ctx context.Context, n *domain.Notification) error {
	ctx, span := tracer.Start(ctx, "SendGrid.SendReminder")
	defer span.End()

	if n.To == "" {
		return &domain.ErrValidation{Field: "to", Message: "is required"}
	}

	subject := "Rent reminder"
	if n.Type != domain.NotificationPaymentReminder {
		subject = "RentDesk notification"
	}

	msg := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", n.To), n.Message, "")
	if m.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return &domain.ErrExternalService{Service: "sendgrid", Err: err}
	}
	if resp.StatusCode >= 300 {
		m.logger.Warn("sendgrid: send rejected",
			zap.String("lease_id", n.LeaseID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", resp.Body),
		)
		return &domain.ErrExternalService{
			Service: "sendgrid",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, resp.Body),
		}
	}

	m.logger.Debug("sendgrid: reminder sent",
		zap.String("lease_id", n.LeaseID),
		zap.String("payment_id", n.PaymentID),
	)
	return nil
}
