package envelopes

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for tests and dev fallback.
type MemoryRepo struct {
	LockTimeout time.Duration

	mu         sync.RWMutex
	envelopes  map[string]Envelope
	recipients map[string][]Recipient
	fields     map[string][]Field
	history    map[string][]HistoryEvent
	historySeq int64
	reminders  map[string][]time.Time
	assets     map[string]SignatureAsset
	suppressed map[string]bool
	locks      map[string]chan struct{}
}

// NewMemoryRepo constructs an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		envelopes:  make(map[string]Envelope),
		recipients: make(map[string][]Recipient),
		fields:     make(map[string][]Field),
		history:    make(map[string][]HistoryEvent),
		reminders:  make(map[string][]time.Time),
		assets:     make(map[string]SignatureAsset),
		suppressed: make(map[string]bool),
		locks:      make(map[string]chan struct{}),
	}
}

// WithEnvelopeLock serializes callers per envelope with a bounded wait.
func (m *MemoryRepo) WithEnvelopeLock(ctx context.Context, envelopeID string, fn func(ctx context.Context, tx Repo) error) error {
	m.mu.Lock()
	if _, ok := m.envelopes[envelopeID]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	lock, ok := m.locks[envelopeID]
	if !ok {
		lock = make(chan struct{}, 1)
		m.locks[envelopeID] = lock
	}
	m.mu.Unlock()

	timeout := m.LockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
	case <-timer.C:
		return ErrEnvelopeLocked
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	return fn(ctx, m)
}

// WithTx mimics transactional semantics: state is snapshotted up front and
// restored when fn fails, so a partial write never survives an error.
func (m *MemoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx Repo) error) error {
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	envelopes  map[string]Envelope
	recipients map[string][]Recipient
	fields     map[string][]Field
	history    map[string][]HistoryEvent
	historySeq int64
	reminders  map[string][]time.Time
	assets     map[string]SignatureAsset
}

func (m *MemoryRepo) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := memorySnapshot{
		envelopes:  make(map[string]Envelope, len(m.envelopes)),
		recipients: make(map[string][]Recipient, len(m.recipients)),
		fields:     make(map[string][]Field, len(m.fields)),
		history:    make(map[string][]HistoryEvent, len(m.history)),
		historySeq: m.historySeq,
		reminders:  make(map[string][]time.Time, len(m.reminders)),
		assets:     make(map[string]SignatureAsset, len(m.assets)),
	}
	for id, env := range m.envelopes {
		snap.envelopes[id] = env
	}
	for id, list := range m.recipients {
		snap.recipients[id] = append([]Recipient(nil), list...)
	}
	for id, list := range m.fields {
		snap.fields[id] = append([]Field(nil), list...)
	}
	for id, list := range m.history {
		snap.history[id] = append([]HistoryEvent(nil), list...)
	}
	for id, list := range m.reminders {
		snap.reminders[id] = append([]time.Time(nil), list...)
	}
	for key, asset := range m.assets {
		snap.assets[key] = asset
	}
	return snap
}

func (m *MemoryRepo) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelopes = snap.envelopes
	m.recipients = snap.recipients
	m.fields = snap.fields
	m.history = snap.history
	m.historySeq = snap.historySeq
	m.reminders = snap.reminders
	m.assets = snap.assets
}

// CreateEnvelope stores the aggregate.
func (m *MemoryRepo) CreateEnvelope(ctx context.Context, agg Aggregate) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelopes[agg.Envelope.ID] = agg.Envelope
	m.recipients[agg.Envelope.ID] = append([]Recipient(nil), agg.Recipients...)
	m.fields[agg.Envelope.ID] = append([]Field(nil), agg.Fields...)
	return nil
}

// GetEnvelope fetches the envelope row alone.
func (m *MemoryRepo) GetEnvelope(ctx context.Context, id string) (Envelope, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.envelopes[id]
	if !ok {
		return Envelope{}, ErrNotFound
	}
	return env, nil
}

// GetAggregate fetches the envelope with children, sorted like the PG repo.
func (m *MemoryRepo) GetAggregate(ctx context.Context, id string) (Aggregate, error) {
	env, err := m.GetEnvelope(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	recipients := append([]Recipient(nil), m.recipients[id]...)
	sort.SliceStable(recipients, func(i, j int) bool { return recipients[i].Priority < recipients[j].Priority })
	fields := append([]Field(nil), m.fields[id]...)
	return Aggregate{Envelope: env, Recipients: recipients, Fields: fields}, nil
}

// UpdateEnvelope replaces the stored envelope row.
func (m *MemoryRepo) UpdateEnvelope(ctx context.Context, env Envelope) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.envelopes[env.ID]; !ok {
		return ErrNotFound
	}
	m.envelopes[env.ID] = env
	return nil
}

// ReplaceParticipants swaps the recipient and field sets of an envelope.
func (m *MemoryRepo) ReplaceParticipants(ctx context.Context, envelopeID string, recipients []Recipient, fields []Field) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.envelopes[envelopeID]; !ok {
		return ErrNotFound
	}
	m.recipients[envelopeID] = append([]Recipient(nil), recipients...)
	m.fields[envelopeID] = append([]Field(nil), fields...)
	return nil
}

// UpdateRecipient replaces the stored recipient row.
func (m *MemoryRepo) UpdateRecipient(ctx context.Context, rcpt Recipient) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.recipients[rcpt.EnvelopeID]
	for i := range list {
		if list[i].ID == rcpt.ID {
			list[i] = rcpt
			return nil
		}
	}
	return ErrNotFound
}

// GetRecipientByToken resolves a routing token.
func (m *MemoryRepo) GetRecipientByToken(ctx context.Context, token string) (Recipient, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, list := range m.recipients {
		for _, rcpt := range list {
			if rcpt.RoutingToken == token {
				return rcpt, nil
			}
		}
	}
	return Recipient{}, ErrInvalidToken
}

// UpdateFields persists value, selection and status per field.
func (m *MemoryRepo) UpdateFields(ctx context.Context, fields []Field) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, field := range fields {
		list := m.fields[field.EnvelopeID]
		for i := range list {
			if list[i].ID == field.ID {
				list[i].Value = field.Value
				list[i].SelectedOptionID = field.SelectedOptionID
				list[i].Status = field.Status
			}
		}
	}
	return nil
}

// AppendHistory records an audit event with a monotonic sequence id.
func (m *MemoryRepo) AppendHistory(ctx context.Context, event HistoryEvent) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historySeq++
	event.ID = m.historySeq
	m.history[event.EnvelopeID] = append(m.history[event.EnvelopeID], event)
	return nil
}

// ListHistory returns events in insertion order, optionally without mailed.
func (m *MemoryRepo) ListHistory(ctx context.Context, envelopeID string, includeMailed bool) ([]HistoryEvent, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []HistoryEvent
	for _, event := range m.history[envelopeID] {
		if !includeMailed && event.Action == ActionMailed {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

// ListOverdue returns pending envelopes whose expiration has passed.
func (m *MemoryRepo) ListOverdue(ctx context.Context, now time.Time) ([]Envelope, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Envelope
	for _, env := range m.envelopes {
		if env.Status == StatusPending && env.DeletedAt == nil &&
			env.ExpirationDate != nil && env.ExpirationDate.Before(now) {
			out = append(out, env)
		}
	}
	return out, nil
}

// ListDueReminders returns pending envelopes not reminded since the cutoff.
func (m *MemoryRepo) ListDueReminders(ctx context.Context, notRemindedSince time.Time) ([]Envelope, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Envelope
	for _, env := range m.envelopes {
		if env.Status != StatusPending || env.DeletedAt != nil {
			continue
		}
		recent := false
		for _, at := range m.reminders[env.ID] {
			if at.After(notRemindedSince) {
				recent = true
				break
			}
		}
		if !recent {
			out = append(out, env)
		}
	}
	return out, nil
}

// ListPurgeable returns soft-deleted envelopes past the retention cutoff.
func (m *MemoryRepo) ListPurgeable(ctx context.Context, deletedBefore time.Time) ([]Envelope, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Envelope
	for _, env := range m.envelopes {
		if env.DeletedAt == nil || !env.DeletedAt.Before(deletedBefore) {
			continue
		}
		if env.PDFKey != "" || env.AuditLogKey != "" || env.CombinedKey != "" {
			out = append(out, env)
		}
	}
	return out, nil
}

// RecordReminder logs a reminder dispatch.
func (m *MemoryRepo) RecordReminder(ctx context.Context, envelopeID string, at time.Time) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[envelopeID] = append(m.reminders[envelopeID], at)
	return nil
}

// UpsertSignatureAsset stores the asset keyed by (email, company).
func (m *MemoryRepo) UpsertSignatureAsset(ctx context.Context, asset SignatureAsset) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[assetKey(asset.Email, asset.CompanyID)] = asset
	return nil
}

// GetSignatureAsset fetches the stored asset for (email, company).
func (m *MemoryRepo) GetSignatureAsset(ctx context.Context, email, companyID string) (SignatureAsset, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[assetKey(email, companyID)]
	if !ok {
		return SignatureAsset{}, ErrNotFound
	}
	return asset, nil
}

// IsEmailSuppressed checks the bounce suppression list.
func (m *MemoryRepo) IsEmailSuppressed(ctx context.Context, email string) (bool, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.suppressed[strings.ToLower(email)], nil
}

// Suppress adds an email to the suppression list.
func (m *MemoryRepo) Suppress(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed[strings.ToLower(email)] = true
}

func assetKey(email, companyID string) string {
	return strings.ToLower(email) + "|" + companyID
}

var _ Repo = (*MemoryRepo)(nil)
