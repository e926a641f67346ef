package envelopes

import (
	"context"
	"time"
)

// Repo provides transactional access to envelope aggregates.
//
// WithEnvelopeLock serializes state-mutating operations on one envelope: fn
// runs while holding a row-level exclusive lock, against a Repo bound to the
// surrounding transaction. A lock wait that exceeds the configured timeout
// surfaces as ErrEnvelopeLocked. Read-only queries do not take the lock.
//
// WithTx groups multi-row writes into one transaction without taking the
// envelope lock; creation flows use it before the envelope row exists.
type Repo interface {
	CreateEnvelope(ctx context.Context, agg Aggregate) error
	GetEnvelope(ctx context.Context, id string) (Envelope, error)
	GetAggregate(ctx context.Context, id string) (Aggregate, error)
	UpdateEnvelope(ctx context.Context, env Envelope) error
	ReplaceParticipants(ctx context.Context, envelopeID string, recipients []Recipient, fields []Field) error
	UpdateRecipient(ctx context.Context, rcpt Recipient) error
	GetRecipientByToken(ctx context.Context, token string) (Recipient, error)
	UpdateFields(ctx context.Context, fields []Field) error

	AppendHistory(ctx context.Context, event HistoryEvent) error
	ListHistory(ctx context.Context, envelopeID string, includeMailed bool) ([]HistoryEvent, error)

	ListOverdue(ctx context.Context, now time.Time) ([]Envelope, error)
	ListDueReminders(ctx context.Context, notRemindedSince time.Time) ([]Envelope, error)
	ListPurgeable(ctx context.Context, deletedBefore time.Time) ([]Envelope, error)
	RecordReminder(ctx context.Context, envelopeID string, at time.Time) error

	UpsertSignatureAsset(ctx context.Context, asset SignatureAsset) error
	GetSignatureAsset(ctx context.Context, email, companyID string) (SignatureAsset, error)

	IsEmailSuppressed(ctx context.Context, email string) (bool, error)

	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repo) error) error
	WithEnvelopeLock(ctx context.Context, envelopeID string, fn func(ctx context.Context, tx Repo) error) error
}
