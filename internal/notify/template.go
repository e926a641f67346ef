package notify

import (
	"fmt"

	"esign-backend/internal/envelopes"
)

// Rendered is a notification body ready for delivery.
type Rendered struct {
	Subject string
	Body    string
}

// Render produces the subject and body for a notification. Pure function
// over the typed context; no string-slug substitution.
func Render(n envelopes.Notification) Rendered {
	switch n.Kind {
	case envelopes.NotifyInvite:
		verb := "sign"
		if n.Role == envelopes.RoleViewer {
			verb = "view"
		}
		return Rendered{
			Subject: fmt.Sprintf("%s has sent you %q to %s", n.Sender, n.Title, verb),
			Body: fmt.Sprintf("Hello %s,\n\n%s has requested that you %s the document %q. Use your signing link to open it.\n",
				n.Name, n.Sender, verb, n.Title),
		}
	case envelopes.NotifyReminder:
		return Rendered{
			Subject: fmt.Sprintf("Reminder: %q is waiting for you", n.Title),
			Body: fmt.Sprintf("Hello %s,\n\nThe document %q is still waiting for your action.\n",
				n.Name, n.Title),
		}
	case envelopes.NotifyCompleted:
		return Rendered{
			Subject: fmt.Sprintf("%q has been completed", n.Title),
			Body: fmt.Sprintf("Hello %s,\n\nAll parties have completed the document %q. The final copy is available from your dashboard.\n",
				n.Name, n.Title),
		}
	case envelopes.NotifyVoided:
		body := fmt.Sprintf("Hello %s,\n\nThe document %q has been voided.\n", n.Name, n.Title)
		if n.Reason != "" {
			body += fmt.Sprintf("Reason: %s\n", n.Reason)
		}
		return Rendered{
			Subject: fmt.Sprintf("%q has been voided", n.Title),
			Body:    body,
		}
	case envelopes.NotifyDeclined:
		body := fmt.Sprintf("Hello %s,\n\n%s has declined to sign the document %q.\n", n.Name, n.Sender, n.Title)
		if n.Reason != "" {
			body += fmt.Sprintf("Reason: %s\n", n.Reason)
		}
		return Rendered{
			Subject: fmt.Sprintf("%q was declined", n.Title),
			Body:    body,
		}
	case envelopes.NotifyExpired:
		return Rendered{
			Subject: fmt.Sprintf("%q has expired", n.Title),
			Body: fmt.Sprintf("Hello %s,\n\nThe document %q passed its expiration date before all parties completed it. You can extend the expiration to resume routing.\n",
				n.Name, n.Title),
		}
	case envelopes.NotifyBounced:
		return Rendered{
			Subject: fmt.Sprintf("Delivery problem on %q", n.Title),
			Body: fmt.Sprintf("Hello %s,\n\nThe invitation for %q could not be delivered to %s. Correct the address and resend.\n",
				n.Name, n.Title, n.Reason),
		}
	default:
		return Rendered{
			Subject: fmt.Sprintf("Update on %q", n.Title),
			Body:    fmt.Sprintf("Hello %s,\n\nThere is an update on the document %q.\n", n.Name, n.Title),
		}
	}
}
