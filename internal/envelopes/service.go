package envelopes

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"esign-backend/internal/shared/metrics"
	"esign-backend/internal/shared/storage/object"
	"esign-backend/internal/shared/telemetry"
)

const signingReason = "Validation of PDF document"

// systemActor names automated history events.
const systemActor = "System"

// Service orchestrates the envelope lifecycle: submission, routing, fills,
// completion, and the scheduler-invoked maintenance operations.
type Service struct {
	Repo     Repo
	Store    object.ObjectStore
	Notify   Notifier
	Renderer Renderer
	Signer   SignatureApplier
	Audit    AuditComposer

	SigningLocation  string
	ReminderInterval time.Duration
	PurgeAfter       time.Duration

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// SubmitInput is the payload for creating or editing an envelope.
type SubmitInput struct {
	EnvelopeID       string
	OwnerID          string
	OwnerName        string
	OwnerEmail       string
	CompanyID        string
	Title            string
	PriorityRequired bool
	AttachAuditLog   bool
	PDFKey           string
	ExpirationDate   *time.Time
	IsTemplate       bool
	Draft            bool
	Recipients       []Recipient
	Fields           []Field
	IP               string
	Browser          string
}

// SubmitEnvelope creates a new envelope or applies an edit to an existing
// one, then routes notifications to the recipients who should act now.
func (s *Service) SubmitEnvelope(ctx context.Context, input SubmitInput) (Envelope, error) {
	if strings.TrimSpace(input.Title) == "" {
		return Envelope{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(input.Recipients) == 0 {
		return Envelope{}, fmt.Errorf("%w: at least one recipient is required", ErrInvalidInput)
	}
	for _, rcpt := range input.Recipients {
		if strings.TrimSpace(rcpt.Email) == "" || strings.TrimSpace(rcpt.Name) == "" {
			return Envelope{}, fmt.Errorf("%w: recipient email and name are required", ErrInvalidInput)
		}
	}

	if input.EnvelopeID == "" {
		return s.createEnvelope(ctx, input)
	}
	return s.editEnvelope(ctx, input)
}

func (s *Service) createEnvelope(ctx context.Context, input SubmitInput) (Envelope, error) {
	if strings.TrimSpace(input.PDFKey) == "" {
		return Envelope{}, fmt.Errorf("%w: source pdf is required", ErrInvalidInput)
	}

	now := s.now()
	env := Envelope{
		ID:               uuid.NewString(),
		OwnerID:          input.OwnerID,
		OwnerName:        input.OwnerName,
		OwnerEmail:       input.OwnerEmail,
		CompanyID:        input.CompanyID,
		Title:            input.Title,
		Status:           StatusPending,
		PriorityRequired: input.PriorityRequired,
		OriginalPDFKey:   input.PDFKey,
		Version:          1.0,
		AttachAuditLog:   input.AttachAuditLog,
		ExpirationDate:   input.ExpirationDate,
		IsTemplate:       input.IsTemplate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if input.Draft {
		env.Status = StatusDraft
	}

	recipients := prepareRecipients(env.ID, input.Recipients, now)
	fields := prepareFields(env.ID, recipients, input.Recipients, input.Fields)

	// Stamp the document identifier onto every page before the envelope
	// becomes visible to anyone.
	source, err := s.readBlob(ctx, input.PDFKey)
	if err != nil {
		return Envelope{}, err
	}
	stamped, err := s.Renderer.StampDocumentID(source, env.ID)
	if err != nil {
		return Envelope{}, fmt.Errorf("stamp document id: %w", err)
	}
	env.PDFKey = documentKey(env.ID, env.Version)
	if _, err := s.Store.SaveWithKey(ctx, env.PDFKey, "application/pdf", bytes.NewReader(stamped)); err != nil {
		return Envelope{}, fmt.Errorf("store stamped pdf: %w", err)
	}

	// Envelope, children, first history entry and routing land in one
	// transaction; a failure anywhere leaves no partial aggregate behind.
	var outbox []Notification
	err = s.Repo.WithTx(ctx, func(ctx context.Context, tx Repo) error {
		if err := tx.CreateEnvelope(ctx, Aggregate{Envelope: env, Recipients: recipients, Fields: fields}); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, env.ID, input.OwnerName, input.OwnerID, ActionDrafted, input.IP, input.Browser); err != nil {
			return err
		}
		if input.Draft {
			return nil
		}
		notes, err := s.routeRecipients(ctx, tx, env, recipients)
		if err != nil {
			return err
		}
		outbox = notes
		return nil
	})
	if err != nil {
		return Envelope{}, err
	}

	metrics.IncEnvelopeSubmitted()
	s.dispatch(ctx, outbox)

	return env, nil
}

func (s *Service) editEnvelope(ctx context.Context, input SubmitInput) (Envelope, error) {
	var updated Envelope
	var outbox []Notification

	err := s.Repo.WithEnvelopeLock(ctx, input.EnvelopeID, func(ctx context.Context, tx Repo) error {
		agg, err := tx.GetAggregate(ctx, input.EnvelopeID)
		if err != nil {
			return err
		}
		env := agg.Envelope
		if !env.Editable() {
			return &NotEditableError{Status: envStatusForError(env)}
		}

		now := s.now()
		recipients, err := mergeRecipients(env.ID, agg.Recipients, input.Recipients, now)
		if err != nil {
			return err
		}
		fields := prepareFields(env.ID, recipients, input.Recipients, input.Fields)

		env.Title = input.Title
		env.PriorityRequired = input.PriorityRequired
		env.AttachAuditLog = input.AttachAuditLog
		env.ExpirationDate = input.ExpirationDate
		if env.Status == StatusDraft && !input.Draft {
			env.Status = StatusPending
		}
		env.UpdatedAt = now

		if err := tx.ReplaceParticipants(ctx, env.ID, recipients, fields); err != nil {
			return err
		}
		if err := tx.UpdateEnvelope(ctx, env); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, env.ID, input.OwnerName, input.OwnerID, ActionCorrected, input.IP, input.Browser); err != nil {
			return err
		}

		if env.Status == StatusPending {
			outbox, err = s.routeRecipients(ctx, tx, env, recipients)
			if err != nil {
				return err
			}
		}
		updated = env
		return nil
	})
	if err != nil {
		return Envelope{}, err
	}

	s.dispatch(ctx, outbox)
	return updated, nil
}

// mergeRecipients builds the new recipient set for an edit, preserving
// identity and progress for recipients that already exist. A recipient who
// already completed must be present and unchanged, or the edit conflicts.
func mergeRecipients(envelopeID string, existing []Recipient, requested []Recipient, now time.Time) ([]Recipient, error) {
	byEmail := make(map[string]Recipient, len(existing))
	for _, rcpt := range existing {
		byEmail[strings.ToLower(rcpt.Email)] = rcpt
	}

	out := make([]Recipient, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, req := range requested {
		key := strings.ToLower(req.Email)
		seen[key] = true
		prev, ok := byEmail[key]
		if !ok {
			out = append(out, newRecipient(envelopeID, req, now))
			continue
		}
		if prev.Status == RecipientCompleted {
			if prev.Name != req.Name || prev.Role != req.Role || prev.Type != req.Type {
				return nil, &EditConflictError{RecipientEmail: prev.Email}
			}
		}
		merged := prev
		merged.Name = req.Name
		merged.Role = req.Role
		merged.Type = req.Type
		merged.Priority = req.Priority
		merged.UpdatedAt = now
		out = append(out, merged)
	}

	for _, prev := range existing {
		if prev.Status == RecipientCompleted && !seen[strings.ToLower(prev.Email)] {
			return nil, &EditConflictError{RecipientEmail: prev.Email}
		}
	}
	return out, nil
}

func prepareRecipients(envelopeID string, requested []Recipient, now time.Time) []Recipient {
	out := make([]Recipient, 0, len(requested))
	for _, req := range requested {
		out = append(out, newRecipient(envelopeID, req, now))
	}
	return out
}

func newRecipient(envelopeID string, req Recipient, now time.Time) Recipient {
	rcpt := req
	rcpt.ID = uuid.NewString()
	rcpt.EnvelopeID = envelopeID
	rcpt.Status = RecipientPending
	rcpt.RoutingToken = newRoutingToken()
	rcpt.IsDeclined = false
	rcpt.DeclineReason = ""
	rcpt.ViewedAt = nil
	rcpt.CreatedAt = now
	rcpt.UpdatedAt = now
	if rcpt.Role == "" {
		rcpt.Role = RoleSigner
	}
	if rcpt.Type == "" {
		rcpt.Type = TypeExternal
	}
	return rcpt
}

// prepareFields rebinds incoming fields to persisted recipient ids. Incoming
// fields reference recipients by position in the submitted list.
func prepareFields(envelopeID string, recipients []Recipient, requested []Recipient, fields []Field) []Field {
	idByEmail := make(map[string]string, len(recipients))
	for _, rcpt := range recipients {
		idByEmail[strings.ToLower(rcpt.Email)] = rcpt.ID
	}
	emailByOldID := make(map[string]string, len(requested))
	for _, req := range requested {
		if req.ID != "" {
			emailByOldID[req.ID] = strings.ToLower(req.Email)
		}
	}

	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		field := f
		field.ID = uuid.NewString()
		field.EnvelopeID = envelopeID
		if field.UUID == "" {
			field.UUID = uuid.NewString()
		}
		if field.Status == "" {
			field.Status = FieldPendingStatus
		}
		if email, ok := emailByOldID[field.RecipientID]; ok {
			field.RecipientID = idByEmail[email]
		} else if id, ok := idByEmail[strings.ToLower(field.RecipientID)]; ok {
			field.RecipientID = id
		}
		for i := range field.Options {
			if field.Options[i].ID == "" {
				field.Options[i].ID = uuid.NewString()
			}
			field.Options[i].FieldID = field.ID
		}
		for i := range field.Radios {
			if field.Radios[i].ID == "" {
				field.Radios[i].ID = uuid.NewString()
			}
			field.Radios[i].FieldID = field.ID
		}
		out = append(out, field)
	}
	return out
}

// routeRecipients marks the newly-notifiable recipients mailed (or bounced
// when suppressed), appends the matching history events, and returns the
// notifications to dispatch after the transaction commits.
func (s *Service) routeRecipients(ctx context.Context, repo Repo, env Envelope, recipients []Recipient) ([]Notification, error) {
	notifiable := NextNotifiable(recipients, env.PriorityRequired)
	now := s.now()

	var outbox []Notification
	for _, rcpt := range notifiable {
		suppressed, err := repo.IsEmailSuppressed(ctx, rcpt.Email)
		if err != nil {
			return nil, err
		}

		if suppressed {
			rcpt.Status = RecipientBounced
		} else {
			rcpt.Status = RecipientMailed
		}
		rcpt.UpdatedAt = now
		if err := repo.UpdateRecipient(ctx, rcpt); err != nil {
			return nil, err
		}

		action := ActionMailed
		if suppressed {
			action = ActionBounced
		}
		if err := s.appendHistory(ctx, repo, env.ID, rcpt.Name, "", action, "", ""); err != nil {
			return nil, err
		}

		if suppressed {
			// The sender hears about the bounce; the recipient cannot.
			outbox = append(outbox, Notification{
				Kind:       NotifyBounced,
				EnvelopeID: env.ID,
				Title:      env.Title,
				To:         env.OwnerEmail,
				Name:       env.OwnerName,
				Reason:     rcpt.Email,
			})
			continue
		}
		outbox = append(outbox, Notification{
			Kind:       NotifyInvite,
			EnvelopeID: env.ID,
			Title:      env.Title,
			To:         rcpt.Email,
			Name:       rcpt.Name,
			Role:       rcpt.Role,
			Token:      rcpt.RoutingToken,
			Sender:     env.OwnerName,
		})
	}
	return outbox, nil
}

// FieldValue is one submitted value keyed by field id or external uuid.
type FieldValue struct {
	FieldID          string
	Value            string
	SelectedOptionID string
}

// FillInput is the payload for a recipient's field submission.
type FillInput struct {
	EnvelopeID  string
	RecipientID string
	Token       string
	Values      []FieldValue
	IP          string
	Browser     string
}

// FillFields processes one recipient's submission under the envelope lock:
// it renders their values onto the PDF, marks the recipient completed, and
// either advances sequential routing or completes the envelope.
func (s *Service) FillFields(ctx context.Context, input FillInput) error {
	if input.EnvelopeID == "" || input.Token == "" {
		return fmt.Errorf("%w: envelope id and token are required", ErrInvalidInput)
	}

	started := time.Now()
	var outbox []Notification

	err := s.Repo.WithEnvelopeLock(ctx, input.EnvelopeID, func(ctx context.Context, tx Repo) error {
		agg, err := tx.GetAggregate(ctx, input.EnvelopeID)
		if err != nil {
			return err
		}
		env := agg.Envelope

		switch {
		case env.DeletedAt != nil || env.Status == StatusDeleted:
			return &NotEditableError{Status: StatusDeleted}
		case env.Status == StatusVoided:
			return &NotEditableError{Status: StatusVoided}
		case env.Status == StatusDeclined:
			return &NotEditableError{Status: StatusDeclined}
		case env.Status == StatusExpired:
			return &NotEditableError{Status: StatusExpired}
		case env.Status == StatusDraft:
			// Tokens are minted at creation, but a draft has not been
			// routed yet and must not accept submissions.
			return &NotEditableError{Status: StatusDraft}
		case env.Status == StatusCompleted:
			return &AlreadyFilledError{}
		}

		rcpt, ok := findRecipient(agg.Recipients, input.RecipientID, input.Token)
		if !ok {
			return ErrInvalidToken
		}
		// Checked after the lock is held to close the double-submit race.
		if rcpt.Status == RecipientCompleted {
			return &AlreadyFilledError{RecipientName: rcpt.Name}
		}

		fields, err := applyValues(agg.SignerFields(rcpt.ID), input.Values)
		if err != nil {
			return err
		}

		images, err := s.fetchSignatureImages(ctx, fields)
		if err != nil {
			return err
		}

		// A stale in-flight submission may reference an old render; the key
		// re-read under the lock always wins.
		source, err := s.readBlob(ctx, env.PDFKey)
		if err != nil {
			return err
		}
		rendered, err := s.Renderer.RenderFields(ctx, source, fields, images)
		if err != nil {
			return fmt.Errorf("render fields: %w", err)
		}

		env.Version = incrementVersion(env.Version)
		env.PDFKey = documentKey(env.ID, env.Version)
		if _, err := s.Store.SaveWithKey(ctx, env.PDFKey, "application/pdf", bytes.NewReader(rendered)); err != nil {
			return fmt.Errorf("store rendered pdf: %w", err)
		}

		now := s.now()
		if err := tx.UpdateFields(ctx, fields); err != nil {
			return err
		}
		rcpt.Status = RecipientCompleted
		rcpt.UpdatedAt = now
		if err := tx.UpdateRecipient(ctx, rcpt); err != nil {
			return err
		}
		env.UpdatedAt = now
		if err := tx.UpdateEnvelope(ctx, env); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, env.ID, rcpt.Name, rcpt.ID, ActionSigned, input.IP, input.Browser); err != nil {
			return err
		}

		if rcpt.Type == TypeInternal {
			s.saveSignatureAssets(ctx, tx, rcpt, env.CompanyID, fields)
		}

		recipients := replaceRecipient(agg.Recipients, rcpt)
		if AllSignersCompleted(recipients) {
			outbox, err = s.completeEnvelope(ctx, tx, env, recipients, rendered, rcpt)
			return err
		}

		if env.PriorityRequired {
			outbox, err = s.routeRecipients(ctx, tx, env, recipients)
			return err
		}
		return nil
	})
	if err != nil {
		metrics.IncFillFailed()
		return err
	}

	metrics.IncFillCompleted()
	metrics.ObserveFillDurationMs(float64(time.Since(started)) / float64(time.Millisecond))
	s.dispatch(ctx, outbox)
	return nil
}

// completeEnvelope runs the terminal pipeline: audit composition, optional
// PKCS#7 signing, final persistence, and completion notifications.
func (s *Service) completeEnvelope(ctx context.Context, tx Repo, env Envelope, recipients []Recipient, rendered []byte, lastSigner Recipient) ([]Notification, error) {
	events, err := tx.ListHistory(ctx, env.ID, false)
	if err != nil {
		return nil, err
	}

	artifacts, err := s.Audit.Compose(ctx, rendered, env, events)
	if err != nil {
		return nil, fmt.Errorf("compose audit trail: %w", err)
	}

	final := rendered
	if env.AttachAuditLog {
		final = artifacts.Document
	} else {
		env.AuditLogKey = auditLogKey(env.ID)
		if _, err := s.Store.SaveWithKey(ctx, env.AuditLogKey, "application/pdf", bytes.NewReader(artifacts.AuditLog)); err != nil {
			return nil, fmt.Errorf("store audit log: %w", err)
		}
		env.CombinedKey = combinedKey(env.ID)
		if _, err := s.Store.SaveWithKey(ctx, env.CombinedKey, "application/pdf", bytes.NewReader(artifacts.Combined)); err != nil {
			return nil, fmt.Errorf("store combined artifact: %w", err)
		}
	}

	agg, err := tx.GetAggregate(ctx, env.ID)
	if err != nil {
		return nil, err
	}
	if agg.HasDigitalSignature() {
		if s.Signer == nil {
			return nil, errors.New("apply signature: no signing certificate configured")
		}
		signed, err := s.Signer.Sign(ctx, final, SigningInfo{
			Name:     lastSigner.Name,
			Email:    lastSigner.Email,
			Location: s.SigningLocation,
			Reason:   signingReason,
		})
		if err != nil {
			return nil, fmt.Errorf("apply signature: %w", err)
		}
		final = signed
	}

	env.Version = incrementVersion(env.Version)
	env.PDFKey = documentKey(env.ID, env.Version)
	if _, err := s.Store.SaveWithKey(ctx, env.PDFKey, "application/pdf", bytes.NewReader(final)); err != nil {
		return nil, fmt.Errorf("store final pdf: %w", err)
	}

	now := s.now()
	env.Status = StatusCompleted
	env.UpdatedAt = now
	if err := tx.UpdateEnvelope(ctx, env); err != nil {
		return nil, err
	}
	if err := s.appendHistory(ctx, tx, env.ID, systemActor, "", ActionCompleted, "", ""); err != nil {
		return nil, err
	}

	metrics.IncEnvelopeCompleted()

	outbox := []Notification{{
		Kind:       NotifyCompleted,
		EnvelopeID: env.ID,
		Title:      env.Title,
		To:         env.OwnerEmail,
		Name:       env.OwnerName,
	}}
	for _, rcpt := range recipients {
		if rcpt.Status == RecipientRevoked || rcpt.Status == RecipientBounced {
			continue
		}
		outbox = append(outbox, Notification{
			Kind:       NotifyCompleted,
			EnvelopeID: env.ID,
			Title:      env.Title,
			To:         rcpt.Email,
			Name:       rcpt.Name,
			Role:       rcpt.Role,
			Token:      rcpt.RoutingToken,
		})
	}
	return outbox, nil
}

// saveSignatureAssets records an internal recipient's drawn signature and
// initials for reuse. Best effort; failures are logged, not fatal.
func (s *Service) saveSignatureAssets(ctx context.Context, tx Repo, rcpt Recipient, companyID string, fields []Field) {
	var signatureKey, initialsKey string
	for _, f := range fields {
		switch f.Type {
		case FieldSignature, FieldDigitalSignature:
			signatureKey = f.Value
		case FieldInitial:
			initialsKey = f.Value
		}
	}
	if signatureKey == "" && initialsKey == "" {
		return
	}

	asset, err := tx.GetSignatureAsset(ctx, rcpt.Email, companyID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		telemetry.Error("envelopes.signature_asset.load", map[string]any{"email": rcpt.Email, "err": err.Error()})
		return
	}
	if asset.ID == "" {
		asset = SignatureAsset{ID: uuid.NewString(), Email: rcpt.Email, CompanyID: companyID}
	}
	if signatureKey != "" {
		asset.SignatureKey = signatureKey
	}
	if initialsKey != "" {
		asset.InitialsKey = initialsKey
	}
	asset.UpdatedAt = s.now()
	if err := tx.UpsertSignatureAsset(ctx, asset); err != nil {
		telemetry.Error("envelopes.signature_asset.save", map[string]any{"email": rcpt.Email, "err": err.Error()})
	}
}

// fetchSignatureImages downloads each referenced signature/initial image
// exactly once, keyed by blob reference.
func (s *Service) fetchSignatureImages(ctx context.Context, fields []Field) (map[string][]byte, error) {
	images := make(map[string][]byte)
	for _, f := range fields {
		switch f.Type {
		case FieldSignature, FieldDigitalSignature, FieldInitial:
		default:
			continue
		}
		if f.Value == "" {
			continue
		}
		if _, ok := images[f.Value]; ok {
			continue
		}
		data, err := s.readBlob(ctx, f.Value)
		if err != nil {
			return nil, fmt.Errorf("fetch signature image %s: %w", f.Value, err)
		}
		images[f.Value] = data
	}
	return images, nil
}

// TokenSummary is the view returned for a validated routing token.
type TokenSummary struct {
	Envelope  Envelope
	Recipient Recipient
	Fields    []Field
}

// ValidateRoutingToken resolves a routing token to its envelope context,
// refusing tokens for envelopes that are no longer actionable.
func (s *Service) ValidateRoutingToken(ctx context.Context, token string) (TokenSummary, error) {
	rcpt, err := s.Repo.GetRecipientByToken(ctx, token)
	if err != nil {
		return TokenSummary{}, err
	}
	agg, err := s.Repo.GetAggregate(ctx, rcpt.EnvelopeID)
	if err != nil {
		return TokenSummary{}, err
	}
	env := agg.Envelope
	if env.DeletedAt != nil || env.Status == StatusDeleted {
		return TokenSummary{}, &NotEditableError{Status: StatusDeleted}
	}
	if env.Status == StatusVoided || env.Status == StatusDeclined {
		return TokenSummary{}, &NotEditableError{Status: env.Status}
	}
	return TokenSummary{Envelope: env, Recipient: rcpt, Fields: agg.SignerFields(rcpt.ID)}, nil
}

// MarkViewed records that a recipient opened the document.
func (s *Service) MarkViewed(ctx context.Context, token, ip, browser string) error {
	rcpt, err := s.Repo.GetRecipientByToken(ctx, token)
	if err != nil {
		return err
	}
	if rcpt.Status != RecipientMailed {
		return nil
	}

	now := s.now()
	rcpt.Status = RecipientViewed
	rcpt.ViewedAt = &now
	rcpt.UpdatedAt = now
	if err := s.Repo.UpdateRecipient(ctx, rcpt); err != nil {
		return err
	}
	return s.appendHistory(ctx, s.Repo, rcpt.EnvelopeID, rcpt.Name, rcpt.ID, ActionViewed, ip, browser)
}

// VoidEnvelope voids a pending or expired envelope and stamps a VOID
// watermark across a fresh copy of the document.
func (s *Service) VoidEnvelope(ctx context.Context, envelopeID, reason, actorName, actorID string) error {
	var outbox []Notification

	err := s.Repo.WithEnvelopeLock(ctx, envelopeID, func(ctx context.Context, tx Repo) error {
		agg, err := tx.GetAggregate(ctx, envelopeID)
		if err != nil {
			return err
		}
		env := agg.Envelope
		if env.Status != StatusPending && env.Status != StatusExpired {
			return &NotEditableError{Status: envStatusForError(env)}
		}

		source, err := s.readBlob(ctx, env.PDFKey)
		if err != nil {
			return err
		}
		watermarked, err := s.Renderer.ApplyVoidWatermark(source)
		if err != nil {
			return fmt.Errorf("apply void watermark: %w", err)
		}

		env.Version = incrementVersion(env.Version)
		env.PDFKey = documentKey(env.ID, env.Version)
		if _, err := s.Store.SaveWithKey(ctx, env.PDFKey, "application/pdf", bytes.NewReader(watermarked)); err != nil {
			return fmt.Errorf("store voided pdf: %w", err)
		}

		now := s.now()
		env.Status = StatusVoided
		env.VoidReason = reason
		env.UpdatedAt = now
		if err := tx.UpdateEnvelope(ctx, env); err != nil {
			return err
		}
		for _, rcpt := range agg.Recipients {
			switch rcpt.Status {
			case RecipientCompleted, RecipientRevoked:
				continue
			}
			rcpt.Status = RecipientVoid
			rcpt.UpdatedAt = now
			if err := tx.UpdateRecipient(ctx, rcpt); err != nil {
				return err
			}
		}
		if err := s.appendHistory(ctx, tx, env.ID, actorName, actorID, ActionVoided, "", ""); err != nil {
			return err
		}

		metrics.IncEnvelopeVoided()

		outbox = append(outbox, Notification{
			Kind: NotifyVoided, EnvelopeID: env.ID, Title: env.Title,
			To: env.OwnerEmail, Name: env.OwnerName, Reason: reason,
		})
		for _, rcpt := range agg.Recipients {
			switch rcpt.Status {
			case RecipientMailed, RecipientViewed, RecipientCompleted:
				outbox = append(outbox, Notification{
					Kind: NotifyVoided, EnvelopeID: env.ID, Title: env.Title,
					To: rcpt.Email, Name: rcpt.Name, Role: rcpt.Role, Reason: reason,
				})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, outbox)
	return nil
}

// DeleteEnvelope soft-deletes any non-completed envelope. Rows are never
// physically removed; artifacts are purged later by the scheduler.
func (s *Service) DeleteEnvelope(ctx context.Context, envelopeID, reason, actorName, actorID string) error {
	return s.Repo.WithEnvelopeLock(ctx, envelopeID, func(ctx context.Context, tx Repo) error {
		env, err := tx.GetEnvelope(ctx, envelopeID)
		if err != nil {
			return err
		}
		if env.Status == StatusCompleted {
			return &NotEditableError{Status: StatusCompleted}
		}
		now := s.now()
		env.Status = StatusDeleted
		env.DeleteReason = reason
		env.DeletedAt = &now
		env.UpdatedAt = now
		if err := tx.UpdateEnvelope(ctx, env); err != nil {
			return err
		}
		return s.appendHistory(ctx, tx, env.ID, actorName, actorID, ActionDeleted, "", "")
	})
}

// DeclineEnvelope declines an envelope on behalf of the token's recipient.
func (s *Service) DeclineEnvelope(ctx context.Context, token, reason, ip, browser string) error {
	rcpt, err := s.Repo.GetRecipientByToken(ctx, token)
	if err != nil {
		return err
	}

	var outbox []Notification
	err = s.Repo.WithEnvelopeLock(ctx, rcpt.EnvelopeID, func(ctx context.Context, tx Repo) error {
		agg, err := tx.GetAggregate(ctx, rcpt.EnvelopeID)
		if err != nil {
			return err
		}
		env := agg.Envelope

		switch {
		case env.Status == StatusCompleted:
			return &DeclineRefusedError{Reason: "document is already completed and can no longer be declined"}
		case env.Status == StatusDeclined:
			who := declinedBy(agg.Recipients)
			if who == "" {
				who = "another recipient"
			}
			return &DeclineRefusedError{Reason: fmt.Sprintf("document was already declined by %s", who)}
		case env.Status == StatusVoided:
			return &DeclineRefusedError{Reason: "document has been voided"}
		case env.DeletedAt != nil || env.Status == StatusDeleted:
			return &DeclineRefusedError{Reason: "document has been deleted"}
		}

		now := s.now()
		rcpt.IsDeclined = true
		rcpt.DeclineReason = reason
		rcpt.UpdatedAt = now
		if err := tx.UpdateRecipient(ctx, rcpt); err != nil {
			return err
		}
		env.Status = StatusDeclined
		env.UpdatedAt = now
		if err := tx.UpdateEnvelope(ctx, env); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, env.ID, rcpt.Name, rcpt.ID, ActionDeclined, ip, browser); err != nil {
			return err
		}

		outbox = append(outbox, Notification{
			Kind: NotifyDeclined, EnvelopeID: env.ID, Title: env.Title,
			To: env.OwnerEmail, Name: env.OwnerName, Sender: rcpt.Name, Reason: reason,
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, outbox)
	return nil
}

// Resend re-dispatches invitations to every currently-reached signer.
// Viewers are informational and do not get nudged again.
func (s *Service) Resend(ctx context.Context, envelopeID, actorName, actorID string) error {
	agg, err := s.Repo.GetAggregate(ctx, envelopeID)
	if err != nil {
		return err
	}
	env := agg.Envelope
	if env.Status != StatusPending {
		return &NotEditableError{Status: envStatusForError(env)}
	}

	var outbox []Notification
	bounced := 0
	for _, rcpt := range agg.Recipients {
		if rcpt.Role != RoleSigner {
			continue
		}
		switch rcpt.Status {
		case RecipientMailed, RecipientViewed:
			outbox = append(outbox, Notification{
				Kind:       NotifyInvite,
				EnvelopeID: env.ID,
				Title:      env.Title,
				To:         rcpt.Email,
				Name:       rcpt.Name,
				Role:       rcpt.Role,
				Token:      rcpt.RoutingToken,
				Sender:     env.OwnerName,
			})
		case RecipientBounced:
			bounced++
		}
	}
	if len(outbox) == 0 {
		if bounced > 0 {
			return fmt.Errorf("%w: every remaining signer has bounced, replace them before resending", ErrInvalidInput)
		}
		return nil
	}
	if err := s.appendHistory(ctx, s.Repo, env.ID, actorName, actorID, ActionResent, "", ""); err != nil {
		return err
	}
	s.dispatch(ctx, outbox)
	return nil
}

// SendReminder nudges every reached, not-yet-completed recipient.
func (s *Service) SendReminder(ctx context.Context, envelopeID string) error {
	agg, err := s.Repo.GetAggregate(ctx, envelopeID)
	if err != nil {
		return err
	}
	env := agg.Envelope
	if env.Status != StatusPending {
		return &NotEditableError{Status: envStatusForError(env)}
	}

	var outbox []Notification
	for _, rcpt := range agg.Recipients {
		switch rcpt.Status {
		case RecipientMailed, RecipientViewed:
			outbox = append(outbox, Notification{
				Kind:       NotifyReminder,
				EnvelopeID: env.ID,
				Title:      env.Title,
				To:         rcpt.Email,
				Name:       rcpt.Name,
				Role:       rcpt.Role,
				Token:      rcpt.RoutingToken,
				Sender:     env.OwnerName,
			})
		}
	}
	if len(outbox) == 0 {
		return nil
	}

	now := s.now()
	if err := s.appendHistory(ctx, s.Repo, env.ID, systemActor, "", ActionReminded, "", ""); err != nil {
		return err
	}
	if err := s.Repo.RecordReminder(ctx, env.ID, now); err != nil {
		return err
	}
	s.dispatch(ctx, outbox)
	return nil
}

// ExtendExpiration moves the expiration date forward. An expired envelope
// returns to pending and its routing resumes.
func (s *Service) ExtendExpiration(ctx context.Context, envelopeID string, newDate time.Time) error {
	if !newDate.After(s.now()) {
		return fmt.Errorf("%w: new expiration must be in the future", ErrInvalidInput)
	}

	var outbox []Notification
	err := s.Repo.WithEnvelopeLock(ctx, envelopeID, func(ctx context.Context, tx Repo) error {
		agg, err := tx.GetAggregate(ctx, envelopeID)
		if err != nil {
			return err
		}
		env := agg.Envelope
		if env.Status != StatusPending && env.Status != StatusExpired {
			return &NotEditableError{Status: envStatusForError(env)}
		}

		now := s.now()
		revived := env.Status == StatusExpired
		env.ExpirationDate = &newDate
		env.UpdatedAt = now
		if revived {
			env.Status = StatusPending
		}
		if err := tx.UpdateEnvelope(ctx, env); err != nil {
			return err
		}

		if revived {
			recipients := agg.Recipients
			for i := range recipients {
				if recipients[i].Status == RecipientExpired {
					recipients[i].Status = RecipientPending
					recipients[i].UpdatedAt = now
					if err := tx.UpdateRecipient(ctx, recipients[i]); err != nil {
						return err
					}
				}
			}
			outbox, err = s.routeRecipients(ctx, tx, env, recipients)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, outbox)
	return nil
}

// ExpireOverdue moves every pending envelope past its expiration date to
// expired. Invoked by the scheduler.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.Repo.ListOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, env := range overdue {
		envID := env.ID
		var outbox []Notification
		err := s.Repo.WithEnvelopeLock(ctx, envID, func(ctx context.Context, tx Repo) error {
			agg, err := tx.GetAggregate(ctx, envID)
			if err != nil {
				return err
			}
			env := agg.Envelope
			if env.Status != StatusPending {
				return nil
			}
			now := s.now()
			env.Status = StatusExpired
			env.UpdatedAt = now
			if err := tx.UpdateEnvelope(ctx, env); err != nil {
				return err
			}
			for _, rcpt := range agg.Recipients {
				switch rcpt.Status {
				case RecipientPending, RecipientMailed, RecipientViewed:
					rcpt.Status = RecipientExpired
					rcpt.UpdatedAt = now
					if err := tx.UpdateRecipient(ctx, rcpt); err != nil {
						return err
					}
				}
			}
			if err := s.appendHistory(ctx, tx, env.ID, systemActor, "", ActionExpired, "", ""); err != nil {
				return err
			}
			outbox = append(outbox, Notification{
				Kind: NotifyExpired, EnvelopeID: env.ID, Title: env.Title,
				To: env.OwnerEmail, Name: env.OwnerName,
			})
			return nil
		})
		if err != nil {
			telemetry.Error("envelopes.expire", map[string]any{"envelope_id": envID, "err": err.Error()})
			continue
		}
		expired++
		s.dispatch(ctx, outbox)
	}
	return expired, nil
}

// SendDueReminders reminds pending envelopes at most once per interval.
func (s *Service) SendDueReminders(ctx context.Context) (int, error) {
	interval := s.ReminderInterval
	if interval <= 0 {
		interval = 72 * time.Hour
	}
	due, err := s.Repo.ListDueReminders(ctx, s.now().Add(-interval))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, env := range due {
		if err := s.SendReminder(ctx, env.ID); err != nil {
			telemetry.Error("envelopes.reminder", map[string]any{"envelope_id": env.ID, "err": err.Error()})
			continue
		}
		sent++
	}
	return sent, nil
}

// PurgeDeleted removes blob artifacts for envelopes soft-deleted past the
// retention window. Rows are kept; only blobs go.
func (s *Service) PurgeDeleted(ctx context.Context) (int, error) {
	retention := s.PurgeAfter
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	purgeable, err := s.Repo.ListPurgeable(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, env := range purgeable {
		failed := false
		for _, key := range []string{env.PDFKey, env.AuditLogKey, env.CombinedKey} {
			if key == "" {
				continue
			}
			if err := s.Store.Delete(ctx, key); err != nil {
				telemetry.Error("envelopes.purge", map[string]any{"envelope_id": env.ID, "key": key, "err": err.Error()})
				failed = true
			}
		}
		if failed {
			continue
		}
		env.PDFKey = ""
		env.AuditLogKey = ""
		env.CombinedKey = ""
		env.UpdatedAt = s.now()
		if err := s.Repo.UpdateEnvelope(ctx, env); err != nil {
			telemetry.Error("envelopes.purge", map[string]any{"envelope_id": env.ID, "err": err.Error()})
			continue
		}
		purged++
	}
	return purged, nil
}

// History lists the full activity trail, including routing events.
func (s *Service) History(ctx context.Context, envelopeID string) ([]HistoryEvent, error) {
	if _, err := s.Repo.GetEnvelope(ctx, envelopeID); err != nil {
		return nil, err
	}
	return s.Repo.ListHistory(ctx, envelopeID, true)
}

// GetAggregate exposes the populated aggregate for read paths.
func (s *Service) GetAggregate(ctx context.Context, envelopeID string) (Aggregate, error) {
	return s.Repo.GetAggregate(ctx, envelopeID)
}

func (s *Service) appendHistory(ctx context.Context, repo Repo, envelopeID, actorName, actorID string, action HistoryAction, ip, browser string) error {
	return repo.AppendHistory(ctx, HistoryEvent{
		EnvelopeID: envelopeID,
		ActorName:  actorName,
		ActorID:    actorID,
		Action:     action,
		IP:         ip,
		Browser:    browser,
		CreatedAt:  s.now(),
	})
}

// dispatch delivers notifications after the surrounding transaction has
// committed. Delivery failures are logged and do not fail the operation.
func (s *Service) dispatch(ctx context.Context, outbox []Notification) {
	if s.Notify == nil {
		return
	}
	for _, n := range outbox {
		if err := s.Notify.Send(ctx, n); err != nil {
			telemetry.Error("envelopes.notify", map[string]any{
				"envelope_id": n.EnvelopeID,
				"kind":        n.Kind,
				"to":          n.To,
				"err":         err.Error(),
			})
		}
	}
}

func (s *Service) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.Store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

func findRecipient(recipients []Recipient, recipientID, token string) (Recipient, bool) {
	for _, rcpt := range recipients {
		if rcpt.RoutingToken != token {
			continue
		}
		if recipientID != "" && rcpt.ID != recipientID {
			continue
		}
		return rcpt, true
	}
	return Recipient{}, false
}

func replaceRecipient(recipients []Recipient, updated Recipient) []Recipient {
	out := append([]Recipient(nil), recipients...)
	for i := range out {
		if out[i].ID == updated.ID {
			out[i] = updated
		}
	}
	return out
}

// applyValues merges submitted values into the recipient's fields and marks
// them completed. Values referencing unknown fields are rejected.
func applyValues(fields []Field, values []FieldValue) ([]Field, error) {
	byID := make(map[string]int, len(fields))
	for i, f := range fields {
		byID[f.ID] = i
		byID[f.UUID] = i
	}

	for _, val := range values {
		i, ok := byID[val.FieldID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %s", ErrInvalidInput, val.FieldID)
		}
		fields[i].Value = val.Value
		fields[i].SelectedOptionID = val.SelectedOptionID
	}
	for i := range fields {
		fields[i].Status = FieldCompletedStatus
	}
	return fields, nil
}

func declinedBy(recipients []Recipient) string {
	for _, rcpt := range recipients {
		if rcpt.IsDeclined {
			return rcpt.Name
		}
	}
	return ""
}

func envStatusForError(env Envelope) EnvelopeStatus {
	if env.DeletedAt != nil {
		return StatusDeleted
	}
	return env.Status
}

// incrementVersion adds the render step to the version counter, keeping one
// decimal of precision.
func incrementVersion(version float64) float64 {
	return float64(int((version+0.1)*10+0.5)) / 10
}

func documentKey(envelopeID string, version float64) string {
	return fmt.Sprintf("envelopes/%s/form-v%.1f.pdf", envelopeID, version)
}

func auditLogKey(envelopeID string) string {
	return fmt.Sprintf("envelopes/%s/audit-log.pdf", envelopeID)
}

func combinedKey(envelopeID string) string {
	return fmt.Sprintf("envelopes/%s/combined.pdf", envelopeID)
}

func newRoutingToken() string {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf[:])
}
