package notify

import (
	"context"
	"fmt"
	"strings"

	"cachepledge.org/internal/obs"
	"cachepledge.org/internal/registry"
)

// Message kinds, also used as the metric label.
const (
	KindPledgeCreated       = "pledge_created"
	KindSubmissionConfirmed = "submission_confirmed"
	KindMagicLink           = "magic_link"
	KindEditLink            = "edit_link"
)

// Mailer composes messages and hands them to an Outbox. Nothing here waits
// for delivery; enqueue failures are logged and counted, never returned.
type Mailer struct {
	out     Outbox
	baseURL string
	event   string
}

var _ registry.Notifier = (*Mailer)(nil)

// NewMailer builds links against baseURL. event is the display name used in
// subjects.
func NewMailer(out Outbox, baseURL, event string) *Mailer {
	if event == "" {
		event = "IRC26"
	}
	return &Mailer{out: out, baseURL: strings.TrimRight(baseURL, "/"), event: event}
}

func (m *Mailer) PledgeCreated(ctx context.Context, email string, p registry.Pledge) {
	m.enqueue(ctx, Message{
		Kind:    KindPledgeCreated,
		To:      email,
		Subject: fmt.Sprintf("%s: pledge received", m.event),
		Body: fmt.Sprintf("Thanks %s, your pledge for a %s cache near %s, %s is in.\n\nView it: %s/pledge/%s\n",
			p.GCUsername, strings.ToLower(string(p.CacheType)), p.ApproxSuburb, p.ApproxState, m.baseURL, p.ID),
	})
}

func (m *Mailer) SubmissionConfirmed(ctx context.Context, email string, s registry.Submission) {
	m.enqueue(ctx, Message{
		Kind:    KindSubmissionConfirmed,
		To:      email,
		Subject: fmt.Sprintf("%s: %s confirmed", m.event, s.GCCode),
		Body: fmt.Sprintf("%s (%s) is now confirmed.\n\nView it: %s/submission/%s\n",
			s.CacheName, s.GCCode, m.baseURL, s.ID),
	})
}

// MagicLink sends a sign-in link.
func (m *Mailer) MagicLink(ctx context.Context, email, link string) {
	m.enqueue(ctx, Message{
		Kind:    KindMagicLink,
		To:      email,
		Subject: fmt.Sprintf("Sign in to %s", m.event),
		Body:    "Use this link to sign in. It works once.\n\n" + link + "\n",
	})
}

// EditLink sends a manage-my-data link.
func (m *Mailer) EditLink(ctx context.Context, email, link string) {
	m.enqueue(ctx, Message{
		Kind:    KindEditLink,
		To:      email,
		Subject: fmt.Sprintf("Manage your %s pledges", m.event),
		Body:    "Use this link to view and edit your pledges and confirmations.\n\n" + link + "\n",
	})
}

// Link joins a path and query token onto the base URL.
func (m *Mailer) Link(path, token string) string {
	return m.baseURL + path + "?token=" + token
}

func (m *Mailer) enqueue(ctx context.Context, msg Message) {
	if m == nil || m.out == nil || msg.To == "" {
		return
	}
	if err := m.out.Enqueue(ctx, msg); err != nil {
		obs.Notification(msg.Kind, err)
		obs.Error("email enqueue failed", err, map[string]any{"kind": msg.Kind})
	}
}
