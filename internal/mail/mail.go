package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/config"
	"github.com/besafe/digital-sister/internal/domain"
)

const senderName = "My Digital Sister"

// ResendTransport delivers plain-text mail through the Resend API.
type ResendTransport struct {
	client *resend.Client
	from   string
}

func NewResendTransport(client *resend.Client, fromAddress string) *ResendTransport {
	return &ResendTransport{
		client: client,
		from:   fmt.Sprintf("%q <%s>", senderName, strings.TrimSpace(fromAddress)),
	}
}

func (t *ResendTransport) Send(ctx context.Context, to, subject, body string) error {
	resp, err := t.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	log.WithField("email_id", resp.Id).Debug("Email accepted by provider")
	return nil
}

// Unconfigured is used when no provider credentials are set. Every send fails.
type Unconfigured struct{}

func (Unconfigured) Send(ctx context.Context, to, subject, body string) error {
	return domain.ErrMailNotConfigured
}

// NewMailer returns the Resend transport when RESEND_API_KEY and EMAIL_FROM are set.
func NewMailer(cfg config.Config) domain.Mailer {
	if !cfg.MailConfigured() {
		log.Warn("Email service is not configured, trusted adult notifications will fail")
		return Unconfigured{}
	}
	return NewResendTransport(resend.NewClient(cfg.ResendAPIKey), cfg.EmailFrom)
}
