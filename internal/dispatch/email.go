package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"faillog/internal/config"
	"faillog/internal/logger"
	"faillog/internal/pkg/circuit"
)

const smtpTimeout = 30 * time.Second

// Email 是一封渲染完成的 BlazeReport 邮件。
type Email struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// RenderEmail fills the subject and the concatenated body lines with r's values.
func RenderEmail(cfg config.EmailConfig, r Record) Email {
	var body strings.Builder
	for _, line := range cfg.Message {
		body.WriteString(ReplacePlaceholders(line, r))
	}
	return Email{
		From:    cfg.Sender,
		To:      append([]string(nil), cfg.Recipients...),
		Subject: ReplacePlaceholders(cfg.Subject, r),
		HTML:    body.String(),
	}
}

// SMTPMailer sends through one SMTP relay. useSSL demands STARTTLS on the configured port.
type SMTPMailer struct {
	host     string
	port     int
	useSSL   bool
	username string
	password string
	breaker  *circuit.CircuitBreaker
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTPHostname,
		port:     cfg.SMTPPort,
		useSSL:   cfg.SMTPUseSSL,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		breaker:  circuit.NewCircuitBreaker("smtp", 3, 5*time.Minute),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if m.host == "" {
		return errors.New("smtp: hostname not configured")
	}
	if len(e.To) == 0 {
		return errors.New("smtp: no recipients")
	}
	if !m.breaker.Allow() {
		return fmt.Errorf("smtp: %w", ErrCircuitOpen)
	}
	err := m.send(ctx, e)
	m.breaker.Record(err)
	return err
}

func (m *SMTPMailer) send(ctx context.Context, e Email) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat("FailLog - "+e.From, e.From); err != nil {
		return fmt.Errorf("smtp: sender: %w", err)
	}
	if err := msg.To(e.To...); err != nil {
		return fmt.Errorf("smtp: recipients: %w", err)
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextHTML, e.HTML)

	client, err := mail.NewClient(m.host, m.options()...)
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	logger.Tracef(3, "[dispatch] BlazeReport-email sent successfully!")
	return nil
}

func (m *SMTPMailer) options() []mail.Option {
	policy := mail.TLSOpportunistic
	if m.useSSL {
		policy = mail.TLSMandatory
	}
	opts := []mail.Option{mail.WithPort(m.port), mail.WithTimeout(smtpTimeout), mail.WithTLSPolicy(policy)}
	if m.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.username),
			mail.WithPassword(m.password),
		)
	}
	return opts
}
