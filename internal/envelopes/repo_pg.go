package envelopes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB          *sql.DB
	LockTimeout time.Duration

	tx dbtx
}

func (r *PGRepo) conn() dbtx {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// WithEnvelopeLock runs fn while holding a row-level exclusive lock on the
// envelope, at read-committed isolation with a bounded lock wait. Lock
// timeouts and deadlocks surface as ErrEnvelopeLocked.
func (r *PGRepo) WithEnvelopeLock(ctx context.Context, envelopeID string, fn func(ctx context.Context, tx Repo) error) error {
	timeout := r.LockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sqlTx, err := r.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if _, err := sqlTx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}

	var locked string
	err = sqlTx.QueryRowContext(ctx, `SELECT id FROM envelopes WHERE id = $1 FOR UPDATE`, envelopeID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if isLockError(err) {
			return ErrEnvelopeLocked
		}
		return fmt.Errorf("lock envelope: %w", err)
	}

	txRepo := &PGRepo{DB: r.DB, LockTimeout: r.LockTimeout, tx: sqlTx}
	if err := fn(ctx, txRepo); err != nil {
		if isLockError(err) {
			return ErrEnvelopeLocked
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// WithTx runs fn against a Repo bound to a single transaction, so the
// multi-row writes of creation flows either all land or none do. A call that
// is already inside a transaction reuses it.
func (r *PGRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx Repo) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	sqlTx, err := r.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	txRepo := &PGRepo{DB: r.DB, LockTimeout: r.LockTimeout, tx: sqlTx}
	if err := fn(ctx, txRepo); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isLockError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 55P03 lock_not_available, 40P01 deadlock_detected
	return pgErr.Code == "55P03" || pgErr.Code == "40P01"
}

// CreateEnvelope inserts the envelope with its recipients and fields.
func (r *PGRepo) CreateEnvelope(ctx context.Context, agg Aggregate) error {
	const query = `
INSERT INTO envelopes (
    id, owner_id, owner_name, owner_email, company_id, title, status,
    priority_required, pdf_key, original_pdf_key, version, attach_audit_log,
    expiration_date, audit_log_key, combined_key, is_template, void_reason,
    reason_for_deletion, deleted_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	env := agg.Envelope
	_, err := r.conn().ExecContext(
		ctx,
		query,
		env.ID,
		env.OwnerID,
		env.OwnerName,
		env.OwnerEmail,
		env.CompanyID,
		env.Title,
		env.Status,
		env.PriorityRequired,
		nullString(env.PDFKey),
		nullString(env.OriginalPDFKey),
		env.Version,
		env.AttachAuditLog,
		nullTime(env.ExpirationDate),
		nullString(env.AuditLogKey),
		nullString(env.CombinedKey),
		env.IsTemplate,
		nullString(env.VoidReason),
		nullString(env.DeleteReason),
		nullTime(env.DeletedAt),
		env.CreatedAt,
		env.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, rcpt := range agg.Recipients {
		if err := r.insertRecipient(ctx, rcpt); err != nil {
			return err
		}
	}
	for _, field := range agg.Fields {
		if err := r.insertField(ctx, field); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGRepo) insertRecipient(ctx context.Context, rcpt Recipient) error {
	const query = `
INSERT INTO recipients (
    id, envelope_id, email, name, role, type, priority, status,
    is_declined, decline_reason, routing_token, viewed_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.conn().ExecContext(
		ctx,
		query,
		rcpt.ID,
		rcpt.EnvelopeID,
		rcpt.Email,
		rcpt.Name,
		rcpt.Role,
		rcpt.Type,
		rcpt.Priority,
		rcpt.Status,
		rcpt.IsDeclined,
		nullString(rcpt.DeclineReason),
		rcpt.RoutingToken,
		nullTime(rcpt.ViewedAt),
		rcpt.CreatedAt,
		rcpt.UpdatedAt,
	)
	return err
}

func (r *PGRepo) insertField(ctx context.Context, field Field) error {
	const query = `
INSERT INTO fields (
    id, envelope_id, recipient_id, uuid, type, x, y, width, height,
    page_index, zoom_x, zoom_y, scale_x, scale_y, font_family, font_size,
    rows, value, selected_option_id, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err := r.conn().ExecContext(
		ctx,
		query,
		field.ID,
		field.EnvelopeID,
		field.RecipientID,
		field.UUID,
		field.Type,
		field.X,
		field.Y,
		field.Width,
		field.Height,
		field.PageIndex,
		field.ZoomX,
		field.ZoomY,
		field.ScaleX,
		field.ScaleY,
		nullString(field.FontFamily),
		field.FontSize,
		field.Rows,
		nullString(field.Value),
		nullString(field.SelectedOptionID),
		field.Status,
	)
	if err != nil {
		return err
	}

	for _, opt := range field.Options {
		if _, err := r.conn().ExecContext(ctx,
			`INSERT INTO field_options (id, field_id, label) VALUES ($1, $2, $3)`,
			opt.ID, field.ID, opt.Label,
		); err != nil {
			return err
		}
	}
	for _, radio := range field.Radios {
		if _, err := r.conn().ExecContext(ctx,
			`INSERT INTO radio_buttons (id, field_id, x, y) VALUES ($1, $2, $3, $4)`,
			radio.ID, field.ID, radio.X, radio.Y,
		); err != nil {
			return err
		}
	}
	return nil
}

const envelopeColumns = `id, owner_id, owner_name, owner_email, company_id, title, status,
    priority_required, pdf_key, original_pdf_key, version, attach_audit_log,
    expiration_date, audit_log_key, combined_key, is_template, void_reason,
    reason_for_deletion, deleted_at, created_at, updated_at`

// GetEnvelope fetches the envelope row alone.
func (r *PGRepo) GetEnvelope(ctx context.Context, id string) (Envelope, error) {
	query := `SELECT ` + envelopeColumns + ` FROM envelopes WHERE id = $1`
	row := r.conn().QueryRowContext(ctx, query, id)
	env, err := scanEnvelope(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Envelope{}, ErrNotFound
		}
		return Envelope{}, err
	}
	return env, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row rowScanner) (Envelope, error) {
	var env Envelope
	var pdfKey, originalKey, auditKey, combinedKey sql.NullString
	var voidReason, deleteReason sql.NullString
	var expiration, deletedAt sql.NullTime
	err := row.Scan(
		&env.ID,
		&env.OwnerID,
		&env.OwnerName,
		&env.OwnerEmail,
		&env.CompanyID,
		&env.Title,
		&env.Status,
		&env.PriorityRequired,
		&pdfKey,
		&originalKey,
		&env.Version,
		&env.AttachAuditLog,
		&expiration,
		&auditKey,
		&combinedKey,
		&env.IsTemplate,
		&voidReason,
		&deleteReason,
		&deletedAt,
		&env.CreatedAt,
		&env.UpdatedAt,
	)
	if err != nil {
		return Envelope{}, err
	}
	env.PDFKey = pdfKey.String
	env.OriginalPDFKey = originalKey.String
	env.AuditLogKey = auditKey.String
	env.CombinedKey = combinedKey.String
	env.VoidReason = voidReason.String
	env.DeleteReason = deleteReason.String
	if expiration.Valid {
		env.ExpirationDate = &expiration.Time
	}
	if deletedAt.Valid {
		env.DeletedAt = &deletedAt.Time
	}
	return env, nil
}

// GetAggregate fetches the envelope with recipients and fields populated.
func (r *PGRepo) GetAggregate(ctx context.Context, id string) (Aggregate, error) {
	env, err := r.GetEnvelope(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}

	recipients, err := r.listRecipients(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}
	fields, err := r.listFields(ctx, id)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{Envelope: env, Recipients: recipients, Fields: fields}, nil
}

func (r *PGRepo) listRecipients(ctx context.Context, envelopeID string) ([]Recipient, error) {
	const query = `
SELECT id, envelope_id, email, name, role, type, priority, status,
    is_declined, decline_reason, routing_token, viewed_at, created_at, updated_at
FROM recipients
WHERE envelope_id = $1
ORDER BY priority ASC, created_at ASC`

	rows, err := r.conn().QueryContext(ctx, query, envelopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var rcpt Recipient
		var declineReason sql.NullString
		var viewedAt sql.NullTime
		if err := rows.Scan(
			&rcpt.ID,
			&rcpt.EnvelopeID,
			&rcpt.Email,
			&rcpt.Name,
			&rcpt.Role,
			&rcpt.Type,
			&rcpt.Priority,
			&rcpt.Status,
			&rcpt.IsDeclined,
			&declineReason,
			&rcpt.RoutingToken,
			&viewedAt,
			&rcpt.CreatedAt,
			&rcpt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rcpt.DeclineReason = declineReason.String
		if viewedAt.Valid {
			rcpt.ViewedAt = &viewedAt.Time
		}
		out = append(out, rcpt)
	}
	return out, rows.Err()
}

func (r *PGRepo) listFields(ctx context.Context, envelopeID string) ([]Field, error) {
	const query = `
SELECT id, envelope_id, recipient_id, uuid, type, x, y, width, height,
    page_index, zoom_x, zoom_y, scale_x, scale_y, font_family, font_size,
    rows, value, selected_option_id, status
FROM fields
WHERE envelope_id = $1
ORDER BY page_index ASC, id ASC`

	rows, err := r.conn().QueryContext(ctx, query, envelopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Field
	for rows.Next() {
		var field Field
		var fontFamily, value, selectedOption sql.NullString
		if err := rows.Scan(
			&field.ID,
			&field.EnvelopeID,
			&field.RecipientID,
			&field.UUID,
			&field.Type,
			&field.X,
			&field.Y,
			&field.Width,
			&field.Height,
			&field.PageIndex,
			&field.ZoomX,
			&field.ZoomY,
			&field.ScaleX,
			&field.ScaleY,
			&fontFamily,
			&field.FontSize,
			&field.Rows,
			&value,
			&selectedOption,
			&field.Status,
		); err != nil {
			return nil, err
		}
		field.FontFamily = fontFamily.String
		field.Value = value.String
		field.SelectedOptionID = selectedOption.String
		out = append(out, field)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		options, err := r.listFieldOptions(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		radios, err := r.listRadioButtons(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Options = options
		out[i].Radios = radios
	}
	return out, nil
}

func (r *PGRepo) listFieldOptions(ctx context.Context, fieldID string) ([]FieldOption, error) {
	rows, err := r.conn().QueryContext(ctx,
		`SELECT id, field_id, label FROM field_options WHERE field_id = $1 ORDER BY id ASC`, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FieldOption
	for rows.Next() {
		var opt FieldOption
		if err := rows.Scan(&opt.ID, &opt.FieldID, &opt.Label); err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, rows.Err()
}

func (r *PGRepo) listRadioButtons(ctx context.Context, fieldID string) ([]RadioButton, error) {
	rows, err := r.conn().QueryContext(ctx,
		`SELECT id, field_id, x, y FROM radio_buttons WHERE field_id = $1 ORDER BY id ASC`, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RadioButton
	for rows.Next() {
		var radio RadioButton
		if err := rows.Scan(&radio.ID, &radio.FieldID, &radio.X, &radio.Y); err != nil {
			return nil, err
		}
		out = append(out, radio)
	}
	return out, rows.Err()
}

// UpdateEnvelope persists mutable envelope columns.
func (r *PGRepo) UpdateEnvelope(ctx context.Context, env Envelope) error {
	const query = `
UPDATE envelopes
SET title = $1, status = $2, priority_required = $3, pdf_key = $4,
    version = $5, attach_audit_log = $6, expiration_date = $7,
    audit_log_key = $8, combined_key = $9, void_reason = $10,
    reason_for_deletion = $11, deleted_at = $12, updated_at = $13
WHERE id = $14`
	res, err := r.conn().ExecContext(
		ctx,
		query,
		env.Title,
		env.Status,
		env.PriorityRequired,
		nullString(env.PDFKey),
		env.Version,
		env.AttachAuditLog,
		nullTime(env.ExpirationDate),
		nullString(env.AuditLogKey),
		nullString(env.CombinedKey),
		nullString(env.VoidReason),
		nullString(env.DeleteReason),
		nullTime(env.DeletedAt),
		env.UpdatedAt,
		env.ID,
	)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceParticipants swaps the recipient and field sets of an envelope.
// Used by edit flows; callers enforce the completed-recipient invariant first.
func (r *PGRepo) ReplaceParticipants(ctx context.Context, envelopeID string, recipients []Recipient, fields []Field) error {
	for _, query := range []string{
		`DELETE FROM field_options WHERE field_id IN (SELECT id FROM fields WHERE envelope_id = $1)`,
		`DELETE FROM radio_buttons WHERE field_id IN (SELECT id FROM fields WHERE envelope_id = $1)`,
		`DELETE FROM fields WHERE envelope_id = $1`,
		`DELETE FROM recipients WHERE envelope_id = $1`,
	} {
		if _, err := r.conn().ExecContext(ctx, query, envelopeID); err != nil {
			return err
		}
	}
	for _, rcpt := range recipients {
		if err := r.insertRecipient(ctx, rcpt); err != nil {
			return err
		}
	}
	for _, field := range fields {
		if err := r.insertField(ctx, field); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRecipient persists mutable recipient columns.
func (r *PGRepo) UpdateRecipient(ctx context.Context, rcpt Recipient) error {
	const query = `
UPDATE recipients
SET status = $1, is_declined = $2, decline_reason = $3, viewed_at = $4, updated_at = $5
WHERE id = $6`
	res, err := r.conn().ExecContext(
		ctx,
		query,
		rcpt.Status,
		rcpt.IsDeclined,
		nullString(rcpt.DeclineReason),
		nullTime(rcpt.ViewedAt),
		rcpt.UpdatedAt,
		rcpt.ID,
	)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRecipientByToken resolves a routing token.
func (r *PGRepo) GetRecipientByToken(ctx context.Context, token string) (Recipient, error) {
	const query = `
SELECT id, envelope_id, email, name, role, type, priority, status,
    is_declined, decline_reason, routing_token, viewed_at, created_at, updated_at
FROM recipients
WHERE routing_token = $1
LIMIT 1`
	var rcpt Recipient
	var declineReason sql.NullString
	var viewedAt sql.NullTime
	err := r.conn().QueryRowContext(ctx, query, token).Scan(
		&rcpt.ID,
		&rcpt.EnvelopeID,
		&rcpt.Email,
		&rcpt.Name,
		&rcpt.Role,
		&rcpt.Type,
		&rcpt.Priority,
		&rcpt.Status,
		&rcpt.IsDeclined,
		&declineReason,
		&rcpt.RoutingToken,
		&viewedAt,
		&rcpt.CreatedAt,
		&rcpt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Recipient{}, ErrInvalidToken
		}
		return Recipient{}, err
	}
	rcpt.DeclineReason = declineReason.String
	if viewedAt.Valid {
		rcpt.ViewedAt = &viewedAt.Time
	}
	return rcpt, nil
}

// UpdateFields persists value, selection and status per field.
func (r *PGRepo) UpdateFields(ctx context.Context, fields []Field) error {
	const query = `
UPDATE fields
SET value = $1, selected_option_id = $2, status = $3
WHERE id = $4`
	for _, field := range fields {
		if _, err := r.conn().ExecContext(
			ctx,
			query,
			nullString(field.Value),
			nullString(field.SelectedOptionID),
			field.Status,
			field.ID,
		); err != nil {
			return err
		}
	}
	return nil
}

// AppendHistory inserts an audit record.
func (r *PGRepo) AppendHistory(ctx context.Context, event HistoryEvent) error {
	const query = `
INSERT INTO history_events (envelope_id, actor_name, actor_id, action, ip, browser, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.conn().ExecContext(
		ctx,
		query,
		event.EnvelopeID,
		event.ActorName,
		nullString(event.ActorID),
		event.Action,
		nullString(event.IP),
		nullString(event.Browser),
		event.CreatedAt,
	)
	return err
}

// ListHistory returns events in causal order. Mailed entries are routing
// noise for the audit trail and are excluded unless requested.
func (r *PGRepo) ListHistory(ctx context.Context, envelopeID string, includeMailed bool) ([]HistoryEvent, error) {
	query := `
SELECT id, envelope_id, actor_name, actor_id, action, ip, browser, created_at
FROM history_events
WHERE envelope_id = $1`
	if !includeMailed {
		query += ` AND action <> 'mailed'`
	}
	query += ` ORDER BY id ASC`

	rows, err := r.conn().QueryContext(ctx, query, envelopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEvent
	for rows.Next() {
		var event HistoryEvent
		var actorID, ip, browser sql.NullString
		if err := rows.Scan(
			&event.ID,
			&event.EnvelopeID,
			&event.ActorName,
			&actorID,
			&event.Action,
			&ip,
			&browser,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		event.ActorID = actorID.String
		event.IP = ip.String
		event.Browser = browser.String
		out = append(out, event)
	}
	return out, rows.Err()
}

// ListOverdue returns pending envelopes whose expiration date has passed.
func (r *PGRepo) ListOverdue(ctx context.Context, now time.Time) ([]Envelope, error) {
	query := `SELECT ` + envelopeColumns + `
FROM envelopes
WHERE status = 'pending' AND deleted_at IS NULL
  AND expiration_date IS NOT NULL AND expiration_date < $1`
	return r.listEnvelopes(ctx, query, now)
}

// ListDueReminders returns pending envelopes not reminded since the cutoff.
func (r *PGRepo) ListDueReminders(ctx context.Context, notRemindedSince time.Time) ([]Envelope, error) {
	query := `SELECT ` + envelopeColumns + `
FROM envelopes e
WHERE e.status = 'pending' AND e.deleted_at IS NULL
  AND NOT EXISTS (
      SELECT 1 FROM reminder_logs rl
      WHERE rl.envelope_id = e.id AND rl.sent_at > $1
  )`
	return r.listEnvelopes(ctx, query, notRemindedSince)
}

// ListPurgeable returns soft-deleted envelopes past the retention cutoff
// that still carry blob references.
func (r *PGRepo) ListPurgeable(ctx context.Context, deletedBefore time.Time) ([]Envelope, error) {
	query := `SELECT ` + envelopeColumns + `
FROM envelopes
WHERE deleted_at IS NOT NULL AND deleted_at < $1
  AND (pdf_key IS NOT NULL OR audit_log_key IS NOT NULL OR combined_key IS NOT NULL)`
	return r.listEnvelopes(ctx, query, deletedBefore)
}

func (r *PGRepo) listEnvelopes(ctx context.Context, query string, args ...any) ([]Envelope, error) {
	rows, err := r.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

// RecordReminder logs a reminder dispatch for the envelope.
func (r *PGRepo) RecordReminder(ctx context.Context, envelopeID string, at time.Time) error {
	_, err := r.conn().ExecContext(ctx,
		`INSERT INTO reminder_logs (envelope_id, sent_at) VALUES ($1, $2)`, envelopeID, at)
	return err
}

// UpsertSignatureAsset stores a recipient's reusable signature/initials keys.
func (r *PGRepo) UpsertSignatureAsset(ctx context.Context, asset SignatureAsset) error {
	const query = `
INSERT INTO signature_assets (id, email, company_id, signature_key, initials_key, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (email, company_id)
DO UPDATE SET signature_key = EXCLUDED.signature_key,
              initials_key = EXCLUDED.initials_key,
              updated_at = EXCLUDED.updated_at`
	_, err := r.conn().ExecContext(
		ctx,
		query,
		asset.ID,
		asset.Email,
		asset.CompanyID,
		nullString(asset.SignatureKey),
		nullString(asset.InitialsKey),
		asset.UpdatedAt,
	)
	return err
}

// GetSignatureAsset fetches the stored asset for (email, company).
func (r *PGRepo) GetSignatureAsset(ctx context.Context, email, companyID string) (SignatureAsset, error) {
	const query = `
SELECT id, email, company_id, signature_key, initials_key, updated_at
FROM signature_assets
WHERE email = $1 AND company_id = $2
LIMIT 1`
	var asset SignatureAsset
	var signatureKey, initialsKey sql.NullString
	err := r.conn().QueryRowContext(ctx, query, email, companyID).Scan(
		&asset.ID,
		&asset.Email,
		&asset.CompanyID,
		&signatureKey,
		&initialsKey,
		&asset.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SignatureAsset{}, ErrNotFound
		}
		return SignatureAsset{}, err
	}
	asset.SignatureKey = signatureKey.String
	asset.InitialsKey = initialsKey.String
	return asset, nil
}

// IsEmailSuppressed checks the bounce suppression list.
func (r *PGRepo) IsEmailSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_suppressions WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
