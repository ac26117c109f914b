package core

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/domain"
)

const trustedAdultSubject = "BeSafe – safety alert about %s"

// BuildTrustedAdultEmail renders the fixed notification template.
func BuildTrustedAdultEmail(v domain.Verdict, displayName string) (subject, body string) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "the person you support"
	}
	subject = fmt.Sprintf(trustedAdultSubject, name)

	var b strings.Builder
	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "This message was sent to you because an automated check flagged content that may indicate an online safety risk for %s.\n\n", name)
	fmt.Fprintf(&b, "Risk level: %s\n", v.RiskLevel)
	fmt.Fprintf(&b, "Category: %s\n\n", v.Category)
	b.WriteString("Explanation:\n")
	b.WriteString(v.Explanation)
	b.WriteString("\n\nGeneral recommendation:\n")
	b.WriteString(v.SupportLine)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "We recommend talking with %s and considering whether a professional or another trusted adult should be involved.\n\n", name)
	fmt.Fprintf(&b, "This message was sent with %s's consent as part of a safety mechanism.\n\n", name)
	b.WriteString("Best regards,\nMy Digital Sister")
	return subject, b.String()
}

// NotificationDispatcher makes one best-effort attempt to reach a trusted adult.
type NotificationDispatcher struct {
	mailer domain.Mailer
}

func NewNotificationDispatcher(mailer domain.Mailer) *NotificationDispatcher {
	return &NotificationDispatcher{mailer: mailer}
}

// Dispatch never returns an error: transport failures, and panics raised by
// the transport, are folded into the EmailReport.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, recipient string, v domain.Verdict, displayName string) (report domain.EmailReport) {
	logger := log.WithFields(log.Fields{
		"risk_level": v.RiskLevel,
		"category":   v.Category,
	})

	defer func() {
		if p := recover(); p != nil {
			logger.WithField("panic", p).Error("Mail transport panicked")
			report = domain.EmailReport{Sent: false, Error: fmt.Sprintf("mail transport failure: %v", p)}
		}
	}()

	if d.mailer == nil {
		return domain.EmailReport{Sent: false, Error: domain.ErrMailNotConfigured.Error()}
	}

	subject, body := BuildTrustedAdultEmail(v, displayName)
	if err := d.mailer.Send(ctx, recipient, subject, body); err != nil {
		logger.WithError(err).Warn("Failed to send trusted adult email")
		return domain.EmailReport{Sent: false, Error: err.Error()}
	}

	logger.Info("Trusted adult email sent")
	return domain.EmailReport{Sent: true}
}
