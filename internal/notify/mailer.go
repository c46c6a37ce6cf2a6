package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
	ProviderLog      = "log"
)

// Mailer delivers one rendered email to a list of recipients.
type Mailer interface {
	Send(ctx context.Context, to []string, msg Message) error
}

// MailerConfig selects and configures the delivery provider.
type MailerConfig struct {
	Provider       string
	From           string
	FromName       string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SendGridAPIKey string
}

// NewMailer builds the mailer named by cfg.Provider. Missing credentials are a
// startup error rather than a silent fallback.
func NewMailer(cfg MailerConfig) (Mailer, error) {
	switch cfg.Provider {
	case ProviderSMTP:
		if cfg.SMTPHost == "" || cfg.From == "" {
			return nil, errors.New("smtp mailer requires SMTP_HOST and MAIL_FROM")
		}
		return &SMTPMailer{
			host:     cfg.SMTPHost,
			port:     cfg.SMTPPort,
			username: cfg.SMTPUsername,
			password: cfg.SMTPPassword,
			from:     mail.Address{Name: cfg.FromName, Address: cfg.From},
		}, nil
	case ProviderSendGrid:
		if cfg.SendGridAPIKey == "" || cfg.From == "" {
			return nil, errors.New("sendgrid mailer requires SENDGRID_API_KEY and MAIL_FROM")
		}
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.From, cfg.FromName), nil
	case ProviderLog, "":
		return LogMailer{}, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// SMTPMailer sends through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     mail.Address
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, msg Message) error {
	if len(to) == 0 {
		return nil
	}
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, auth, m.from.Address, to, buildMIMEMessage(m.from, to, msg, time.Now()))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMIMEMessage(from mail.Address, to []string, msg Message, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mimeSubject(msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

var mimeWordEncoder = mime.QEncoding

// mimeSubject encodes non-ASCII subjects as RFC 2047 words.
func mimeSubject(subject string) string {
	for _, r := range subject {
		if r > 127 {
			return mimeWordEncoder.Encode("UTF-8", subject)
		}
	}
	return subject
}

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

func NewSendGridMailer(apiKey, from, fromName string) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(fromName, from),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, to []string, msg Message) error {
	if len(to) == 0 {
		return nil
	}
	message := sgmail.NewV3Mail()
	message.SetFrom(m.from)
	message.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	for _, addr := range to {
		p.AddTos(sgmail.NewEmail("", addr))
	}
	message.AddPersonalizations(p)
	message.AddContent(sgmail.NewContent("text/html", msg.HTML))

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogMailer writes emails to the log instead of sending them. Used in
// development and when no provider is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to []string, msg Message) error {
	zap.L().Info("email (log provider)",
		zap.String("component", "mailer"),
		zap.Strings("to", to),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
