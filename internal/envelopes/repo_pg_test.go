package envelopes

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db, LockTimeout: time.Second}, mock
}

func envelopeRows(env Envelope) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "owner_name", "owner_email", "company_id", "title", "status",
		"priority_required", "pdf_key", "original_pdf_key", "version", "attach_audit_log",
		"expiration_date", "audit_log_key", "combined_key", "is_template", "void_reason",
		"reason_for_deletion", "deleted_at", "created_at", "updated_at",
	}).AddRow(
		env.ID, env.OwnerID, env.OwnerName, env.OwnerEmail, env.CompanyID, env.Title, env.Status,
		env.PriorityRequired, env.PDFKey, env.OriginalPDFKey, env.Version, env.AttachAuditLog,
		nil, env.AuditLogKey, env.CombinedKey, env.IsTemplate, env.VoidReason,
		env.DeleteReason, nil, env.CreatedAt, env.UpdatedAt,
	)
}

func TestPGRepoGetEnvelope(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	want := Envelope{
		ID: "env-1", OwnerID: "owner-1", OwnerName: "Olivia", OwnerEmail: "o@x.test",
		CompanyID: "acme", Title: "NDA", Status: StatusPending, Version: 1.1,
		PDFKey: "envelopes/env-1/form-v1.1.pdf", CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery("SELECT (.+) FROM envelopes WHERE id").
		WithArgs("env-1").
		WillReturnRows(envelopeRows(want))

	got, err := repo.GetEnvelope(context.Background(), "env-1")
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	if got.ID != want.ID || got.Status != want.Status || got.Version != want.Version {
		t.Fatalf("got %+v", got)
	}
	if got.PDFKey != want.PDFKey {
		t.Fatalf("pdf key = %s", got.PDFKey)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetEnvelopeNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM envelopes WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetEnvelope(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGRepoWithEnvelopeLockTimeout(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM envelopes WHERE id = \\$1 FOR UPDATE").
		WithArgs("env-1").
		WillReturnError(&pgconn.PgError{Code: "55P03"})
	mock.ExpectRollback()

	err := repo.WithEnvelopeLock(context.Background(), "env-1", func(ctx context.Context, tx Repo) error {
		t.Fatal("fn must not run when the lock is unavailable")
		return nil
	})
	if !errors.Is(err, ErrEnvelopeLocked) {
		t.Fatalf("err = %v, want ErrEnvelopeLocked", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoWithEnvelopeLockMissingEnvelope(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM envelopes WHERE id = \\$1 FOR UPDATE").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.WithEnvelopeLock(context.Background(), "missing", func(ctx context.Context, tx Repo) error {
		return nil
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGRepoWithEnvelopeLockCommitsFn(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM envelopes WHERE id = \\$1 FOR UPDATE").
		WithArgs("env-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("env-1"))
	mock.ExpectExec("INSERT INTO history_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.WithEnvelopeLock(context.Background(), "env-1", func(ctx context.Context, tx Repo) error {
		return tx.AppendHistory(ctx, HistoryEvent{
			EnvelopeID: "env-1", ActorName: "System", Action: ActionExpired, CreatedAt: time.Now(),
		})
	})
	if err != nil {
		t.Fatalf("WithEnvelopeLock: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoWithTxRollsBackOnInsertFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO envelopes").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO recipients").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO fields").WillReturnError(errors.New("field insert failed"))
	mock.ExpectRollback()

	agg := Aggregate{
		Envelope:   Envelope{ID: "env-1", CreatedAt: now, UpdatedAt: now},
		Recipients: []Recipient{{ID: "r-1", EnvelopeID: "env-1", RoutingToken: "tok", CreatedAt: now, UpdatedAt: now}},
		Fields:     []Field{{ID: "f-1", EnvelopeID: "env-1", RecipientID: "r-1"}},
	}
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx Repo) error {
		return tx.CreateEnvelope(ctx, agg)
	})
	if err == nil {
		t.Fatal("expected the field insert failure to propagate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoWithTxCommitsCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO envelopes").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO history_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx Repo) error {
		if err := tx.CreateEnvelope(ctx, Aggregate{Envelope: Envelope{ID: "env-1", CreatedAt: now, UpdatedAt: now}}); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, HistoryEvent{
			EnvelopeID: "env-1", ActorName: "Olivia", Action: ActionDrafted, CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateEnvelopeNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE envelopes").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateEnvelope(context.Background(), Envelope{ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGRepoGetRecipientByTokenInvalid(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM recipients").
		WithArgs("bogus").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRecipientByToken(context.Background(), "bogus")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestPGRepoListHistoryExcludesMailedByDefault(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`action <> 'mailed'`).
		WithArgs("env-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "envelope_id", "actor_name", "actor_id", "action", "ip", "browser", "created_at",
		}).AddRow(int64(1), "env-1", "Alex", "r-1", ActionSigned, "10.0.0.1", "firefox", now))

	events, err := repo.ListHistory(context.Background(), "env-1", false)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(events) != 1 || events[0].Action != ActionSigned {
		t.Fatalf("events = %+v", events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoIsEmailSuppressed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("bounce@x.test").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	suppressed, err := repo.IsEmailSuppressed(context.Background(), "bounce@x.test")
	if err != nil || !suppressed {
		t.Fatalf("IsEmailSuppressed = (%v, %v), want (true, nil)", suppressed, err)
	}
}

func TestPGRepoUpsertSignatureAsset(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO signature_assets").
		WithArgs("asset-1", "a@x.test", "acme", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertSignatureAsset(context.Background(), SignatureAsset{
		ID: "asset-1", Email: "a@x.test", CompanyID: "acme",
		SignatureKey: "sig-key", UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("UpsertSignatureAsset: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
