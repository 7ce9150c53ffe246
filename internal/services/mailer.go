package services

import (
	"fmt"

	"github.com/userdesk/backend/internal/config"
	"github.com/userdesk/backend/pkg/logger"
	"github.com/wneessen/go-mail"
)

// Mailer delivers transactional mail over SMTP. A nil or disabled mailer is
// a no-op, which is what the test harness and local dev use.
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(to, subject, htmlBody string) error {
	if m == nil || !m.cfg.Enabled {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	logger.Info("mail_send", map[string]interface{}{"to": to, "subject": subject})
	return client.DialAndSend(msg)
}

func (m *Mailer) SendVerificationEmail(to, link string) error {
	body := fmt.Sprintf(
		`<p>Welcome! Click the <a href="%s">link</a> to verify your email address.</p>`, link)
	return m.Send(to, "Verify your email address.", body)
}

func (m *Mailer) SendPasswordResetEmail(to, link string) error {
	body := fmt.Sprintf(
		`<p>Click the <a href="%s">link</a> to reset your password. The link expires in one hour.</p>`, link)
	return m.Send(to, "Reset your password.", body)
}
