package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/monitor"
)

var (
	_ authshield.Notifier   = (*SMTPNotifier)(nil)
	_ monitor.AlertNotifier = (*SMTPNotifier)(nil)
)

// SMTPConfig configures [SMTPNotifier].
type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string

	// AppName appears in subjects and bodies.
	AppName string
	// BaseURL prefixes the verification and reset links.
	BaseURL string
	// AlertRecipients receive security alerts. Alerts are skipped when
	// empty.
	AlertRecipients []string
	Timeout         time.Duration
}

// Validate reports the first invalid field.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return errors.New("SMTP Host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("SMTP Port must be in 1..65535")
	}
	if c.From == "" {
		return errors.New("SMTP From is required")
	}
	if c.BaseURL == "" {
		return errors.New("SMTP BaseURL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("SMTP BaseURL is invalid: %w", err)
	}
	return nil
}

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

// SMTPNotifier sends user and operator email through go-mail.
type SMTPNotifier struct {
	cfg    SMTPConfig
	sender Sender
	logger *zap.Logger
}

// NewSMTPNotifier builds a go-mail client from cfg.
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return NewSMTPNotifierWithSender(cfg, client, logger), nil
}

// NewSMTPNotifierWithSender uses sender instead of dialing cfg.Host.
func NewSMTPNotifierWithSender(cfg SMTPConfig, sender Sender, logger *zap.Logger) *SMTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AppName == "" {
		cfg.AppName = "authshield"
	}
	return &SMTPNotifier{cfg: cfg, sender: sender, logger: logger}
}

func (n *SMTPNotifier) link(path, value string) string {
	return strings.TrimRight(n.cfg.BaseURL, "/") + path + "?token=" + url.QueryEscape(value)
}

func (n *SMTPNotifier) send(ctx context.Context, m message, to []string, data templateData) error {
	data.AppName = n.cfg.AppName
	body, err := render(m, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", m, err)
	}

	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(body.Subject)
	msg.SetBodyString(mail.TypeTextPlain, body.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, body.HTML)

	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", m, err)
	}
	n.logger.Debug("email sent", zap.String("kind", string(m)), zap.Int("recipients", len(to)))
	return nil
}

func (n *SMTPNotifier) SendVerificationEmail(ctx context.Context, to, name, value string, expiresAt time.Time) error {
	return n.send(ctx, msgVerification, []string{to}, templateData{
		Name:      name,
		Link:      n.link("/verify-email", value),
		ExpiresAt: expiresAt,
	})
}

func (n *SMTPNotifier) SendPasswordResetEmail(ctx context.Context, to, name, value string, expiresAt time.Time) error {
	return n.send(ctx, msgPasswordReset, []string{to}, templateData{
		Name:      name,
		Link:      n.link("/reset-password", value),
		ExpiresAt: expiresAt,
	})
}

func (n *SMTPNotifier) SendLockoutNotification(ctx context.Context, to, name string, lockedUntil time.Time, d time.Duration) error {
	return n.send(ctx, msgLockout, []string{to}, templateData{
		Name:      name,
		ExpiresAt: lockedUntil,
		Minutes:   minutes(d),
	})
}

func (n *SMTPNotifier) SendPasswordChangedNotification(ctx context.Context, to, name string, at time.Time) error {
	return n.send(ctx, msgPasswordChanged, []string{to}, templateData{Name: name, At: at})
}

// SendSecurityAlert mails a to every configured alert recipient.
func (n *SMTPNotifier) SendSecurityAlert(ctx context.Context, a *monitor.Alert) error {
	if len(n.cfg.AlertRecipients) == 0 {
		return nil
	}
	return n.send(ctx, msgSecurityAlert, n.cfg.AlertRecipients, alertData(a))
}

func alertData(a *monitor.Alert) templateData {
	return templateData{
		Severity:    strings.ToUpper(string(a.Severity)),
		Title:       a.Title,
		Message:     a.Message,
		IP:          a.IP,
		EventCount:  a.EventCount,
		WindowStart: a.WindowStart,
		WindowEnd:   a.WindowEnd,
		AlertID:     a.ID,
	}
}

func minutes(d time.Duration) int {
	return int((d + time.Minute - 1) / time.Minute)
}
