package envelopes

import "sort"

// ActiveRecipients returns the non-revoked recipients sorted by priority.
// Revoked recipients are excluded from every routing computation.
func ActiveRecipients(recipients []Recipient) []Recipient {
	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if r.Status == RecipientRevoked {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// NextNotifiable computes which recipients should be notified now.
//
// Sequential mode walks the priority order: completed recipients are behind
// us, a bounced recipient anchors the boundary and halts routing until the
// sender intervenes, a mailed or viewed signer is still working so nobody
// new is reached, and the first pending stretch yields a run of viewers
// followed by at most one signer.
//
// Parallel mode notifies every recipient that has not been reached yet.
func NextNotifiable(recipients []Recipient, sequential bool) []Recipient {
	active := ActiveRecipients(recipients)

	if !sequential {
		var out []Recipient
		for _, r := range active {
			if r.Status == RecipientPending {
				out = append(out, r)
			}
		}
		return out
	}

	var out []Recipient
	for _, r := range active {
		switch r.Status {
		case RecipientCompleted:
			continue
		case RecipientBounced:
			return nil
		case RecipientMailed, RecipientViewed:
			if r.Role == RoleSigner {
				return nil
			}
			continue
		case RecipientPending:
			out = append(out, r)
			if r.Role == RoleSigner {
				return out
			}
		default:
			continue
		}
	}
	return out
}

// AllSignersCompleted reports whether every non-revoked signer has completed.
// This is the completion condition for both routing modes.
func AllSignersCompleted(recipients []Recipient) bool {
	for _, r := range recipients {
		if r.Status == RecipientRevoked || r.Role != RoleSigner {
			continue
		}
		if r.Status != RecipientCompleted {
			return false
		}
	}
	return true
}

// PendingSigners counts non-revoked signers that have not completed yet.
func PendingSigners(recipients []Recipient) int {
	n := 0
	for _, r := range recipients {
		if r.Status == RecipientRevoked || r.Role != RoleSigner {
			continue
		}
		if r.Status != RecipientCompleted {
			n++
		}
	}
	return n
}
