package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/projectdash/dashboard-backend/pkg/config"
	"github.com/projectdash/dashboard-backend/pkg/logger"
)

// Sender delivers a notice. Implementations must honor ctx.
type Sender interface {
	Send(ctx context.Context, n Notice) error
}

type mailDialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// MailSender sends notices over SMTP.
type MailSender struct {
	client   mailDialer
	from     string
	fromName string
}

// NewMailSender builds an SMTP sender. Port 465 uses implicit TLS, any other
// port requires STARTTLS.
func NewMailSender(cfg config.SMTPConfig, timeout time.Duration) (*MailSender, error) {
	if !cfg.Configured() {
		return nil, errors.New("smtp host and from address are required")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	return &MailSender{client: client, from: cfg.From, fromName: cfg.FromName}, nil
}

func (s *MailSender) Send(ctx context.Context, n Notice) error {
	msg, err := s.message(n)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *MailSender) message(n Notice) (*mail.Msg, error) {
	if strings.TrimSpace(n.To) == "" {
		return nil, errors.New("notice recipient is required")
	}
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(n.Subject)
	msg.SetBodyString(mail.TypeTextPlain, n.Body)
	return msg, nil
}

// LogSender writes notices to the log. Used when SMTP is not configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, n Notice) error {
	if s.logg == nil {
		return nil
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"notice_kind": n.Kind,
		"to":          n.To,
		"subject":     n.Subject,
		"body":        n.Body,
	})
	s.logg.Info(logCtx, "notice.logged")
	return nil
}
