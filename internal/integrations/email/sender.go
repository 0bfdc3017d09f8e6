// Package email delivers reports over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"feedbackbot/internal/domain"

	"go.uber.org/zap"
)

const subjectPrefix = "Weekly Feedback Priority Report"

type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Sender     string
	Recipients []string
}

type Sender struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	// dial is replaced in tests.
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func New(cfg Config, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

func (s *Sender) Name() string { return "email" }

func (s *Sender) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.Sender != "" && len(s.cfg.Recipients) > 0
}

func (s *Sender) Deliver(ctx context.Context, report domain.Report) error {
	return s.SendReport(ctx, s.cfg.Recipients, report.Content)
}

// SendReport mails content to recipients, upgrading to TLS when the server
// offers STARTTLS.
func (s *Sender) SendReport(ctx context.Context, recipients []string, content string) error {
	if s.cfg.Host == "" || s.cfg.Sender == "" {
		return errors.New("email is not configured")
	}
	if len(recipients) == 0 {
		return errors.New("no email recipients")
	}

	now := s.now()
	msg := Message{
		From:    s.cfg.Sender,
		To:      recipients,
		Subject: fmt.Sprintf("%s - %s", subjectPrefix, now.Format("2006-01-02")),
		Body:    content,
		Date:    now,
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("connecting to smtp server %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("starting smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.Sender); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	if err := client.Quit(); err != nil {
		s.logger.Warn("smtp quit failed", zap.Error(err))
	}

	s.logger.Info("report emailed", zap.Int("recipients", len(recipients)), zap.String("server", addr))
	return nil
}
