// Package email sends lifecycle notices over SMTP. Delivery is best
// effort: failures are logged and never surface to the caller's request.
package email

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/healthguard/surveillance/internal/observability/logger"
	"github.com/healthguard/surveillance/internal/store/core"
)

type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Notifier wraps an SMTP dialer. A disabled notifier drops every notice
// silently, so callers never branch on configuration.
type Notifier struct {
	cfg Config
	log *zap.Logger

	// send is swapped out in tests.
	send func(m *mail.Message) error
}

func NewNotifier(cfg Config) *Notifier {
	n := &Notifier{cfg: cfg, log: logger.Named("email")}
	n.send = func(m *mail.Message) error {
		d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		d.TLSConfig = &tls.Config{ServerName: cfg.Host}
		return d.DialAndSend(m)
	}
	return n
}

// AccountCreated sends the onboarding notice.
func (n *Notifier) AccountCreated(acc *core.ClientAccount) {
	subject := "Welcome to HealthGuard Surveillance"
	body := fmt.Sprintf(
		"Hello %s,\n\nYour %s account for %s is being provisioned. "+
			"Your first invoice is due on %s.\n\nThe HealthGuard team",
		acc.ContactPerson, acc.Tier, acc.CompanyName,
		acc.NextBillingDate.Format("2006-01-02"))
	n.deliver(acc.Email, subject, body)
}

// AccountSuspended sends the suspension notice with the operator reason.
func (n *Notifier) AccountSuspended(acc *core.ClientAccount, reason string) {
	subject := "Your HealthGuard account has been suspended"
	body := fmt.Sprintf("Hello %s,\n\nThe account for %s has been suspended.",
		acc.ContactPerson, acc.CompanyName)
	if reason != "" {
		body += "\nReason: " + reason
	}
	body += "\n\nPlease contact support to resolve this.\n\nThe HealthGuard team"
	n.deliver(acc.Email, subject, body)
}

// AccountReactivated sends the reactivation notice.
func (n *Notifier) AccountReactivated(acc *core.ClientAccount) {
	subject := "Your HealthGuard account is active again"
	body := fmt.Sprintf("Hello %s,\n\nThe account for %s has been reactivated. "+
		"All services are available.\n\nThe HealthGuard team",
		acc.ContactPerson, acc.CompanyName)
	n.deliver(acc.Email, subject, body)
}

func (n *Notifier) deliver(to, subject, body string) {
	if !n.cfg.Enabled || to == "" {
		return
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.send(m); err != nil {
		n.log.Warn("smtp send failed", zap.String("to", to),
			zap.String("subject", subject), zap.Error(err))
		return
	}
	n.log.Info("notice sent", zap.String("to", to), zap.String("subject", subject))
}
