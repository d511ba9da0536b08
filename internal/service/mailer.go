package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apaddicto/internal/config"
	"github.com/apaddicto/internal/logging"
	"gopkg.in/gomail.v2"
)

const defaultSMTPTimeout = 15 * time.Second

// Message 是一封待发送的邮件。
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer sends transactional mail.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers mail through gomail.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

// NewMailer 根据配置选择 SMTP 或日志实现。
func NewMailer(cfg config.SMTPConfig, log *logging.Logger) Mailer {
	if cfg.Enabled() {
		return &SMTPMailer{cfg: cfg, timeout: defaultSMTPTimeout}
	}
	return &LogMailer{log: log}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	gm, err := m.build(msg)
	if err != nil {
		return err
	}

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)

	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(gm)
	}()

	wait := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < wait {
			wait = d
		}
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}

func (m *SMTPMailer) build(msg Message) (*gomail.Message, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return nil, errors.New("mail recipient is required")
	}
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		return nil, errors.New("mail subject is required")
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.cfg.From)
	gm.SetHeader("To", to)
	gm.SetHeader("Subject", subject)
	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		gm.SetBody("text/plain", msg.TextBody)
		gm.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		gm.SetBody("text/html", msg.HTMLBody)
	default:
		gm.SetBody("text/plain", msg.TextBody)
	}
	return gm, nil
}

// LogMailer 在未配置 SMTP 时只记录日志，便于本地开发。
type LogMailer struct {
	log *logging.Logger
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if m.log != nil {
		m.log.Info("mail not sent, smtp disabled", "subject", msg.Subject, "body_bytes", len(msg.TextBody)+len(msg.HTMLBody))
	}
	return nil
}
