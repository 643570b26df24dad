package alerting

import (
	"context"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/rs/zerolog"
)

// Notifier 定义告警输送接口。
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailOptions parameterise the SMTP transport.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// EmailNotifier 通过 SMTP 推送邮件通知。
type EmailNotifier struct {
	opts   EmailOptions
	dialer *mail.Dialer
	logger zerolog.Logger
}

// NewEmailNotifier 构造邮件告警器。
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	dialer := mail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	dialer.Timeout = opts.Timeout
	dialer.StartTLSPolicy = mail.MandatoryStartTLS

	return &EmailNotifier{
		opts:   opts,
		dialer: dialer,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// Send delivers one plain-text message. The SMTP dialer enforces its own
// timeout; ctx is consulted before dialing so a cancelled pass does not
// start new deliveries.
func (n *EmailNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.opts.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	from := n.opts.From
	if from == "" {
		from = n.opts.Username
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().Str("to", to).Str("subject", subject).Msg("告警邮件已发送")
	return nil
}

var _ Notifier = (*EmailNotifier)(nil)
