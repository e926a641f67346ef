package envelopes

import "time"

// EnvelopeStatus is the lifecycle state of an envelope.
type EnvelopeStatus string

const (
	StatusDraft     EnvelopeStatus = "draft"
	StatusPending   EnvelopeStatus = "pending"
	StatusCompleted EnvelopeStatus = "completed"
	StatusVoided    EnvelopeStatus = "voided"
	StatusExpired   EnvelopeStatus = "expired"
	StatusDeclined  EnvelopeStatus = "declined"
	StatusDeleted   EnvelopeStatus = "deleted"
)

// RecipientStatus is the routing state of a single recipient.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientMailed    RecipientStatus = "mailed"
	RecipientViewed    RecipientStatus = "viewed"
	RecipientCompleted RecipientStatus = "completed"
	RecipientRevoked   RecipientStatus = "revoked"
	RecipientBounced   RecipientStatus = "bounced"
	RecipientExpired   RecipientStatus = "expired"
	RecipientVoid      RecipientStatus = "void"
)

// RecipientRole distinguishes participants who must sign from watchers.
type RecipientRole string

const (
	RoleSigner RecipientRole = "signer"
	RoleViewer RecipientRole = "viewer"
)

// RecipientType records whether the participant belongs to the owning company.
type RecipientType string

const (
	TypeInternal RecipientType = "internal"
	TypeExternal RecipientType = "external"
)

// FieldType enumerates the overlay element kinds.
type FieldType string

const (
	FieldText             FieldType = "text"
	FieldCheckbox         FieldType = "checkbox"
	FieldRadio            FieldType = "radio"
	FieldDropdown         FieldType = "dropdown"
	FieldDate             FieldType = "date"
	FieldSignature        FieldType = "signature"
	FieldDigitalSignature FieldType = "digital-signature"
	FieldInitial          FieldType = "initial"
	FieldFullName         FieldType = "full_name"
	FieldEmail            FieldType = "email"
	FieldCompany          FieldType = "company"
	FieldTitle            FieldType = "title"
	FieldNumber           FieldType = "number"
)

// FieldStatus tracks whether a field has been filled.
type FieldStatus string

const (
	FieldPendingStatus   FieldStatus = "pending"
	FieldCompletedStatus FieldStatus = "completed"
)

// HistoryAction enumerates audit-trail event kinds.
type HistoryAction string

const (
	ActionMailed    HistoryAction = "mailed"
	ActionViewed    HistoryAction = "viewed"
	ActionSigned    HistoryAction = "signed"
	ActionCompleted HistoryAction = "completed"
	ActionCorrected HistoryAction = "corrected"
	ActionVoided    HistoryAction = "voided"
	ActionDeclined  HistoryAction = "declined"
	ActionBounced   HistoryAction = "bounced"
	ActionResent    HistoryAction = "resent"
	ActionExpired   HistoryAction = "expired"
	ActionReminded  HistoryAction = "reminded"
	ActionDrafted   HistoryAction = "drafted"
	ActionDeleted   HistoryAction = "deleted"
)

// Envelope is one document routed for signature or viewing.
type Envelope struct {
	ID               string
	OwnerID          string
	OwnerName        string
	OwnerEmail       string
	CompanyID        string
	Title            string
	Status           EnvelopeStatus
	PriorityRequired bool
	PDFKey           string
	OriginalPDFKey   string
	Version          float64
	AttachAuditLog   bool
	ExpirationDate   *time.Time
	AuditLogKey      string
	CombinedKey      string
	IsTemplate       bool
	VoidReason       string
	DeleteReason     string
	DeletedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Editable reports whether the envelope still accepts field submissions.
func (e Envelope) Editable() bool {
	switch e.Status {
	case StatusPending, StatusDraft:
		return e.DeletedAt == nil
	default:
		return false
	}
}

// Recipient is one participant of an envelope.
type Recipient struct {
	ID            string
	EnvelopeID    string
	Email         string
	Name          string
	Role          RecipientRole
	Type          RecipientType
	Priority      int
	Status        RecipientStatus
	IsDeclined    bool
	DeclineReason string
	RoutingToken  string
	ViewedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Field is one fillable overlay element bound to a recipient.
type Field struct {
	ID               string
	EnvelopeID       string
	RecipientID      string
	UUID             string
	Type             FieldType
	X                float64
	Y                float64
	Width            float64
	Height           float64
	PageIndex        int
	ZoomX            float64
	ZoomY            float64
	ScaleX           float64
	ScaleY           float64
	FontFamily       string
	FontSize         float64
	Rows             int
	Value            string
	SelectedOptionID string
	Status           FieldStatus
	Options          []FieldOption
	Radios           []RadioButton
}

// FieldOption is one dropdown choice owned by a field.
type FieldOption struct {
	ID      string
	FieldID string
	Label   string
}

// RadioButton is one member of a radio group with its own geometry.
type RadioButton struct {
	ID      string
	FieldID string
	X       float64
	Y       float64
}

// HistoryEvent is an append-only audit record. ActorID is empty for
// system-generated events.
type HistoryEvent struct {
	ID         int64
	EnvelopeID string
	ActorName  string
	ActorID    string
	Action     HistoryAction
	IP         string
	Browser    string
	CreatedAt  time.Time
}

// SignatureAsset is a reusable signature/initials image pair keyed by
// (email, company).
type SignatureAsset struct {
	ID           string
	Email        string
	CompanyID    string
	SignatureKey string
	InitialsKey  string
	UpdatedAt    time.Time
}

// ReminderLog records when an envelope reminder was last dispatched.
type ReminderLog struct {
	ID         int64
	EnvelopeID string
	SentAt     time.Time
}

// Aggregate is an envelope with its fully-populated children.
type Aggregate struct {
	Envelope   Envelope
	Recipients []Recipient
	Fields     []Field
}

// SignerFields returns the fields bound to the given recipient.
func (a Aggregate) SignerFields(recipientID string) []Field {
	var out []Field
	for _, f := range a.Fields {
		if f.RecipientID == recipientID {
			out = append(out, f)
		}
	}
	return out
}

// HasDigitalSignature reports whether any field requests a PKCS#7 signature.
func (a Aggregate) HasDigitalSignature() bool {
	for _, f := range a.Fields {
		if f.Type == FieldDigitalSignature {
			return true
		}
	}
	return false
}
