package channels

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"response-service/internal/config"
	"response-service/internal/db"
	"response-service/internal/models"
)

// EmailContacts resolves a user's email address.
type EmailContacts interface {
	GetEmailAddress(ctx context.Context, userID int) (string, error)
}

// Email sends plain-text mail over SMTP.
type Email struct {
	cfg      config.Config
	contacts EmailContacts
}

func NewEmail(cfg config.Config, contacts EmailContacts) *Email {
	return &Email{cfg: cfg, contacts: contacts}
}

func (c *Email) Name() string { return "email" }

func (c *Email) Validate() error {
	e := c.cfg.Email
	if e.SMTPServer == "" || e.SMTPPort == 0 || e.Username == "" || e.Password == "" {
		return fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}
	if c.contacts == nil {
		return fmt.Errorf("email channel requires a contact store")
	}
	return nil
}

func (c *Email) Send(ctx context.Context, recipientID int, msg models.Message) error {
	to, err := c.contacts.GetEmailAddress(ctx, recipientID)
	if err != nil {
		if errors.Is(err, db.ErrNoContact) {
			return Permanent(err)
		}
		return Transient(err)
	}

	subject := msg.Subject
	if msg.Urgency != "" {
		subject = fmt.Sprintf("[%s] %s", msg.Urgency, subject)
	}
	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		c.cfg.Email.FromName, to, subject, msg.Body)

	auth := smtp.PlainAuth("", c.cfg.Email.Username, c.cfg.Email.Password, c.cfg.Email.SMTPServer)
	addr := fmt.Sprintf("%s:%d", c.cfg.Email.SMTPServer, c.cfg.Email.SMTPPort)
	if err := smtp.SendMail(addr, auth, c.cfg.Email.Username, []string{to}, []byte(message)); err != nil {
		return classifyNetErr(fmt.Errorf("failed to send email to %s: %w", to, err))
	}
	return nil
}
