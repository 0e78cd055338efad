package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/logging"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTP sends alerts as plain-text mail through a relay.
type SMTP struct {
	mu     sync.Mutex
	client *mail.Client
	logger *logging.Logger
}

// NewSMTP builds an SMTP notifier from cfg. No connection is made until
// the first Send.
func NewSMTP(cfg config.SMTPConfig, logger *logging.Logger) (*SMTP, error) {
	if logger == nil {
		logger = logging.Default()
	}
	policy, err := tlsPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}
	timeout := defaultSMTPTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(policy),
		mail.WithTimeout(timeout),
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
	return &SMTP{client: client, logger: logger.With("component", "notify.smtp")}, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch strings.ToLower(name) {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown smtp tls policy %q", name)
	}
}

// Send delivers msg to all recipients in a single mail.
func (s *SMTP) Send(ctx context.Context, msg Message) bool {
	m, err := buildMail(msg)
	if err != nil {
		s.logger.Warn("alert mail rejected", "device", msg.DeviceID, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		s.logger.Warn("alert mail failed", "device", msg.DeviceID, "kind", msg.Kind, "error", err)
		return false
	}
	return true
}

func buildMail(msg Message) (*mail.Msg, error) {
	if len(msg.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	m := mail.NewMsg()
	if err := m.FromFormat(msg.FromName, msg.FromAddress); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.Recipients...); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
