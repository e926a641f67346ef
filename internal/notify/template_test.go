package notify

import (
	"context"
	"strings"
	"testing"

	"esign-backend/internal/envelopes"
)

func TestRenderInviteSigner(t *testing.T) {
	r := Render(envelopes.Notification{
		Kind:   envelopes.NotifyInvite,
		Role:   envelopes.RoleSigner,
		Name:   "Alex",
		Sender: "Olivia Owner",
		Title:  "Offer Letter",
	})
	if !strings.Contains(r.Subject, "to sign") {
		t.Fatalf("subject = %q, want signer invite", r.Subject)
	}
	if !strings.Contains(r.Body, "Olivia Owner") || !strings.Contains(r.Body, "Offer Letter") {
		t.Fatalf("body = %q", r.Body)
	}
}

func TestRenderInviteViewer(t *testing.T) {
	r := Render(envelopes.Notification{
		Kind:   envelopes.NotifyInvite,
		Role:   envelopes.RoleViewer,
		Name:   "Vera",
		Sender: "Olivia Owner",
		Title:  "Offer Letter",
	})
	if !strings.Contains(r.Subject, "to view") {
		t.Fatalf("subject = %q, want viewer invite", r.Subject)
	}
}

func TestRenderDeclinedIncludesReason(t *testing.T) {
	r := Render(envelopes.Notification{
		Kind:   envelopes.NotifyDeclined,
		Name:   "Olivia Owner",
		Sender: "Alex",
		Title:  "NDA",
		Reason: "terms unacceptable",
	})
	if !strings.Contains(r.Body, "Reason: terms unacceptable") {
		t.Fatalf("body = %q, want decline reason", r.Body)
	}
}

func TestRenderVoidedOmitsEmptyReason(t *testing.T) {
	r := Render(envelopes.Notification{
		Kind:  envelopes.NotifyVoided,
		Name:  "Alex",
		Title: "NDA",
	})
	if strings.Contains(r.Body, "Reason:") {
		t.Fatalf("body = %q, want no reason line", r.Body)
	}
}

func TestRenderBouncedNamesBadAddress(t *testing.T) {
	r := Render(envelopes.Notification{
		Kind:   envelopes.NotifyBounced,
		Name:   "Olivia Owner",
		Title:  "NDA",
		Reason: "bounce@x.test",
	})
	if !strings.Contains(r.Body, "bounce@x.test") {
		t.Fatalf("body = %q, want bounced address", r.Body)
	}
}

func TestCaptureRecordsSends(t *testing.T) {
	c := NewCapture()
	_ = c.Send(context.Background(), envelopes.Notification{Kind: envelopes.NotifyReminder, To: "a@x.test"})
	_ = c.Send(context.Background(), envelopes.Notification{Kind: envelopes.NotifyCompleted, To: "b@x.test"})

	sent := c.Sent()
	if len(sent) != 2 || sent[0].To != "a@x.test" || sent[1].Kind != envelopes.NotifyCompleted {
		t.Fatalf("sent = %+v", sent)
	}
}
