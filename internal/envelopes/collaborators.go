package envelopes

import "context"

// Renderer overlays field values and stamps onto PDF bytes. Implementations
// must return a valid PDF after every call.
type Renderer interface {
	// RenderFields draws the given fields onto the document. Signature and
	// initial images are supplied by blob key; each image is fetched once
	// per fill operation by the caller.
	RenderFields(ctx context.Context, pdf []byte, fields []Field, images map[string][]byte) ([]byte, error)
	// StampDocumentID writes a small identifier header onto every page.
	StampDocumentID(pdf []byte, envelopeID string) ([]byte, error)
	// ApplyVoidWatermark stamps a diagonal VOID mark across every page.
	ApplyVoidWatermark(pdf []byte) ([]byte, error)
}

// SigningInfo describes the visible properties of a digital signature.
type SigningInfo struct {
	Name     string
	Email    string
	Location string
	Reason   string
}

// SignatureApplier embeds a PKCS#7 detached signature into a rendered PDF.
// Failures are fatal: a signature must not be retried against different
// document state.
type SignatureApplier interface {
	Sign(ctx context.Context, pdf []byte, info SigningInfo) ([]byte, error)
}

// AuditArtifacts is the output of audit composition. Document is populated
// in attach mode; AuditLog and Combined in standalone mode.
type AuditArtifacts struct {
	Document []byte
	AuditLog []byte
	Combined []byte
}

// AuditComposer renders the event timeline to a PDF page and merges it with
// the rendered document according to the envelope's attach setting.
type AuditComposer interface {
	Compose(ctx context.Context, doc []byte, env Envelope, events []HistoryEvent) (AuditArtifacts, error)
}

// Notification kinds dispatched by the service.
const (
	NotifyInvite    = "invite"
	NotifyReminder  = "reminder"
	NotifyCompleted = "completed"
	NotifyVoided    = "voided"
	NotifyDeclined  = "declined"
	NotifyExpired   = "expired"
	NotifyBounced   = "bounced"
)

// Notification is the typed context handed to the Notifier. Subject and
// body rendering happen inside the Notifier implementation, outside the
// core.
type Notification struct {
	Kind       string
	EnvelopeID string
	Title      string
	To         string
	Name       string
	Role       RecipientRole
	Token      string
	Sender     string
	Reason     string
}

// Notifier delivers outbound messages asynchronously. Never invoked while
// holding the envelope lock.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
