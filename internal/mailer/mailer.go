package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"s3-csv-email-writer/internal/config"
)

const welcomeSubject = "Thanks for subscribing!"

const welcomeBody = `Hello,

Thank you for subscribing to our newsletter. You will hear from us with the next issue.

If you did not sign up, you can ignore this message.
`

type Mailer struct {
	host string
	port int
	user string
	pass string
	from string
}

func New(cfg *config.Welcome) *Mailer {
	return &Mailer{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
		from: cfg.SMTPFrom,
	}
}

// SendWelcome sends the welcome message to a new subscriber.
func (m *Mailer) SendWelcome(ctx context.Context, to string) error {
	msg, err := m.welcomeMessage(to)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(
		m.host,
		mail.WithPort(m.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithUsername(m.user),
		mail.WithPassword(m.pass),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (m *Mailer) welcomeMessage(to string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("failed to set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("failed to set to: %w", err)
	}
	msg.Subject(welcomeSubject)
	msg.SetBodyString(mail.TypeTextPlain, welcomeBody)
	return msg, nil
}
