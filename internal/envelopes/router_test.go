package envelopes

import "testing"

func rcpt(id string, priority int, role RecipientRole, status RecipientStatus) Recipient {
	return Recipient{ID: id, Email: id + "@example.com", Priority: priority, Role: role, Status: status}
}

func ids(recipients []Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.ID)
	}
	return out
}

func TestNextNotifiableSequentialFirstSignerOnly(t *testing.T) {
	recipients := []Recipient{
		rcpt("s1", 1, RoleSigner, RecipientPending),
		rcpt("s2", 2, RoleSigner, RecipientPending),
		rcpt("s3", 3, RoleSigner, RecipientPending),
	}

	got := ids(NextNotifiable(recipients, true))
	if len(got) != 1 || got[0] != "s1" {
		t.Fatalf("expected only s1 notifiable, got %v", got)
	}
}

func TestNextNotifiableSequentialViewerBurst(t *testing.T) {
	recipients := []Recipient{
		rcpt("v1", 1, RoleViewer, RecipientPending),
		rcpt("v2", 2, RoleViewer, RecipientPending),
		rcpt("s1", 3, RoleSigner, RecipientPending),
		rcpt("s2", 4, RoleSigner, RecipientPending),
	}

	got := ids(NextNotifiable(recipients, true))
	want := []string{"v1", "v2", "s1"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNextNotifiableSequentialAdvanceAfterCompletion(t *testing.T) {
	recipients := []Recipient{
		rcpt("s1", 1, RoleSigner, RecipientCompleted),
		rcpt("s2", 2, RoleSigner, RecipientPending),
		rcpt("s3", 3, RoleSigner, RecipientPending),
	}

	got := ids(NextNotifiable(recipients, true))
	if len(got) != 1 || got[0] != "s2" {
		t.Fatalf("expected s2 to become active, got %v", got)
	}
}

func TestNextNotifiableSequentialActiveSignerBlocks(t *testing.T) {
	recipients := []Recipient{
		rcpt("s1", 1, RoleSigner, RecipientMailed),
		rcpt("s2", 2, RoleSigner, RecipientPending),
	}

	if got := NextNotifiable(recipients, true); len(got) != 0 {
		t.Fatalf("expected nobody notifiable while s1 is active, got %v", ids(got))
	}

	recipients[0].Status = RecipientViewed
	if got := NextNotifiable(recipients, true); len(got) != 0 {
		t.Fatalf("expected nobody notifiable while s1 is viewing, got %v", ids(got))
	}
}

func TestNextNotifiableSequentialBouncedAnchorHalts(t *testing.T) {
	recipients := []Recipient{
		rcpt("s1", 1, RoleSigner, RecipientCompleted),
		rcpt("s2", 2, RoleSigner, RecipientBounced),
		rcpt("s3", 3, RoleSigner, RecipientPending),
	}

	if got := NextNotifiable(recipients, true); len(got) != 0 {
		t.Fatalf("expected routing to halt at bounced recipient, got %v", ids(got))
	}
}

func TestNextNotifiableSequentialMailedViewerDoesNotBlock(t *testing.T) {
	recipients := []Recipient{
		rcpt("v1", 1, RoleViewer, RecipientMailed),
		rcpt("s1", 2, RoleSigner, RecipientPending),
	}

	got := ids(NextNotifiable(recipients, true))
	if len(got) != 1 || got[0] != "s1" {
		t.Fatalf("expected s1 notifiable past the mailed viewer, got %v", got)
	}
}

func TestNextNotifiableParallelFanOut(t *testing.T) {
	recipients := []Recipient{
		rcpt("s1", 1, RoleSigner, RecipientPending),
		rcpt("v1", 2, RoleViewer, RecipientPending),
		rcpt("s2", 3, RoleSigner, RecipientMailed),
		rcpt("s3", 4, RoleSigner, RecipientCompleted),
	}

	got := ids(NextNotifiable(recipients, false))
	want := map[string]bool{"s1": true, "v1": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d notifiable, got %v", len(want), got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected notifiable recipient %q", id)
		}
	}
}

func TestNextNotifiableExcludesRevoked(t *testing.T) {
	recipients := []Recipient{
		rcpt("s1", 1, RoleSigner, RecipientRevoked),
		rcpt("s2", 2, RoleSigner, RecipientPending),
	}

	got := ids(NextNotifiable(recipients, true))
	if len(got) != 1 || got[0] != "s2" {
		t.Fatalf("expected revoked recipient skipped, got %v", got)
	}
}

func TestAllSignersCompleted(t *testing.T) {
	recipients := []Recipient{
		rcpt("s1", 1, RoleSigner, RecipientCompleted),
		rcpt("v1", 2, RoleViewer, RecipientMailed),
		rcpt("s2", 3, RoleSigner, RecipientRevoked),
	}
	if !AllSignersCompleted(recipients) {
		t.Fatalf("expected completion with viewer outstanding and signer revoked")
	}

	recipients = append(recipients, rcpt("s3", 4, RoleSigner, RecipientPending))
	if AllSignersCompleted(recipients) {
		t.Fatalf("expected incomplete with a pending signer")
	}
	if got := PendingSigners(recipients); got != 1 {
		t.Fatalf("expected 1 pending signer, got %d", got)
	}
}
