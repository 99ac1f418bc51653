package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"clockpoint/internal/config"
	"clockpoint/internal/metrics"
)

type Sender interface {
	Send(ctx context.Context, to []string, subject, html string) error
}

// SMTPSender keeps one SMTP connection open and redials after a failure.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string

	mu   sync.Mutex
	conn gomail.SendCloser
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.Sender,
	}
}

// Connect opens the connection eagerly so misconfiguration shows at startup.
func (s *SMTPSender) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *SMTPSender) connectLocked() error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject, html string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	done := make(chan error, 1)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.connectLocked(); err != nil {
			done <- err
			return
		}
		if err := gomail.Send(s.conn, m); err != nil {
			_ = s.conn.Close()
			s.conn = nil
			done <- fmt.Errorf("smtp send: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Deliverer renders messages and sends them with a bounded number of
// attempts, each bounded by a timeout.
type Deliverer struct {
	sender   Sender
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

func NewDeliverer(sender Sender, cfg config.SMTPConfig, log zerolog.Logger) *Deliverer {
	attempts := cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	return &Deliverer{sender: sender, timeout: cfg.Timeout, attempts: attempts, backoff: time.Second, log: log}
}

func (d *Deliverer) Deliver(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("mail without recipients")
	}
	subject, body, err := Render(msg)
	if err != nil {
		metrics.MailDeliveriesTotal.WithLabelValues(msg.Template, "invalid").Inc()
		return err
	}

	wait := d.backoff
	for attempt := 1; ; attempt++ {
		err = d.sendOnce(ctx, msg.To, subject, body)
		if err == nil {
			metrics.MailDeliveriesTotal.WithLabelValues(msg.Template, "sent").Inc()
			return nil
		}
		d.log.Warn().Err(err).
			Str("template", msg.Template).
			Int("attempt", attempt).
			Msg("mail delivery attempt failed")
		if attempt >= d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	metrics.MailDeliveriesTotal.WithLabelValues(msg.Template, "failed").Inc()
	return fmt.Errorf("deliver %s mail after %d attempts: %w", msg.Template, d.attempts, err)
}

func (d *Deliverer) sendOnce(ctx context.Context, to []string, subject, body string) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.sender.Send(ctx, to, subject, body)
}
