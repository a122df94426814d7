package mail

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// Sender is what the auth handlers depend on; tests substitute a stub to
// exercise the rollback path when delivery fails.
type Sender interface {
	Send(to, subject, body string) error
}

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
