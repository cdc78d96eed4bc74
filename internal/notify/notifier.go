// Package notify sends transactional e-mail to trainers.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/resendlabs/resend-go"
)

// DraftCreated is sent after a trainer submits the preview form.
type DraftCreated struct {
	To         string
	Name       string
	PreviewURL string
	ExpiresAt  time.Time
}

// TrainerActivated is sent once payment promoted the preview to a live profile.
type TrainerActivated struct {
	To         string
	Name       string
	ProfileURL string
}

// Notifier delivers trainer e-mails. Callers treat failures as non-fatal.
type Notifier interface {
	DraftCreated(ctx context.Context, msg DraftCreated) error
	TrainerActivated(ctx context.Context, msg TrainerActivated) error
}

type emailSender interface {
	Send(params *resend.SendEmailRequest) (resend.SendEmailResponse, error)
}

// ResendNotifier sends HTML e-mail through the Resend API.
type ResendNotifier struct {
	emails emailSender
	from   string
}

var _ Notifier = (*ResendNotifier)(nil)

// NewResendNotifier builds a notifier for apiKey sending as from.
func NewResendNotifier(apiKey, from string) (*ResendNotifier, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("notify: resend api key is required")
	}
	return newResendNotifier(resend.NewClient(apiKey).Emails, from)
}

func newResendNotifier(emails emailSender, from string) (*ResendNotifier, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("notify: sender address is required")
	}
	return &ResendNotifier{emails: emails, from: from}, nil
}

// DraftCreated sends the preview link.
func (n *ResendNotifier) DraftCreated(ctx context.Context, msg DraftCreated) error {
	return n.send(ctx, msg.To, "Your trainer profile preview is ready", draftCreatedTemplate, map[string]any{
		"Name":       msg.Name,
		"PreviewURL": msg.PreviewURL,
		"ExpiresAt":  msg.ExpiresAt.UTC().Format("02.01.2006 15:04 MST"),
	})
}

// TrainerActivated confirms the profile is live.
func (n *ResendNotifier) TrainerActivated(ctx context.Context, msg TrainerActivated) error {
	return n.send(ctx, msg.To, "Your trainer profile is live", trainerActivatedTemplate, map[string]any{
		"Name":       msg.Name,
		"ProfileURL": msg.ProfileURL,
	})
}

func (n *ResendNotifier) send(ctx context.Context, to, subject string, tmpl *template.Template, data map[string]any) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("notify: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("notify: render %s: %w", tmpl.Name(), err)
	}
	if _, err := n.emails.Send(&resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: subject,
		Html:    body.String(),
	}); err != nil {
		return fmt.Errorf("notify: send %s via resend: %w", tmpl.Name(), err)
	}
	return nil
}

// Noop drops every message. Used when no Resend key is configured.
type Noop struct{}

func (Noop) DraftCreated(context.Context, DraftCreated) error         { return nil }
func (Noop) TrainerActivated(context.Context, TrainerActivated) error { return nil }

var (
	draftCreatedTemplate = template.Must(template.New("draft_created").Parse(`<p>Hallo {{.Name}},</p>
<p>your profile preview is ready. Review and edit it here:</p>
<p><a href="{{.PreviewURL}}">{{.PreviewURL}}</a></p>
<p>The link stays valid until {{.ExpiresAt}}. Activate your profile before then to keep it.</p>`))

	trainerActivatedTemplate = template.Must(template.New("trainer_activated").Parse(`<p>Hallo {{.Name}},</p>
<p>thanks for your payment. Your profile is now listed in the trainer directory:</p>
<p><a href="{{.ProfileURL}}">{{.ProfileURL}}</a></p>`))
)
