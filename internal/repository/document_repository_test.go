package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"notarypro/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func documentValues(d domain.Document) []driver.Value {
	var generalID interface{}
	if d.GeneralDocumentID != nil {
		generalID = d.GeneralDocumentID.String()
	}
	str := func(s *string) driver.Value {
		if s == nil {
			return nil
		}
		return *s
	}
	tm := func(t *time.Time) driver.Value {
		if t == nil {
			return nil
		}
		return *t
	}
	return []driver.Value{
		d.ID.String(), d.Title, d.Description, d.FilePath, d.FileName, d.FileSize, d.FileType,
		str(d.CertifiedFilePath), str(d.CertifiedFileName), str(d.CertifiedFileType), d.DocumentType,
		string(d.Status), d.VerificationCode, d.UserID, str(d.CertifiedBy), tm(d.CertifiedAt), str(d.RejectedBy),
		tm(d.RejectedAt), str(d.RejectionReason), generalID, []byte(`{"urgency":"normal"}`), d.CreatedAt,
		d.UpdatedAt,
	}
}

func documentRows(docs ...domain.Document) *sqlmock.Rows {
	rows := sqlmock.NewRows(documentColumns)
	for _, d := range docs {
		rows.AddRow(documentValues(d)...)
	}
	return rows
}

func strPtr(s string) *string { return &s }

func sampleDocument() domain.Document {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Document{
		ID:               uuid.MustParse("7d4c3f4e-0d52-4b4a-9a3c-0c3a6b8f2e11"),
		Title:            "Poder Simple",
		FilePath:         "uploads/notary_documents/file-1709287200000-123456789.pdf",
		FileName:         "poder.pdf",
		FileSize:         2048,
		FileType:         domain.MIMETypePDF,
		DocumentType:     "poder",
		Status:           domain.StatusPending,
		VerificationCode: "ABC-123",
		UserID:           "U123",
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func TestCreateWithGeneral(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	doc := sampleDocument()
	general := &domain.GeneralDocument{
		ID:           uuid.New(),
		Title:        doc.Title,
		DocumentType: doc.DocumentType,
		Status:       string(domain.StatusPending),
		FilePath:     doc.FilePath,
		OwnerID:      doc.UserID,
		SourceModule: domain.SourceModuleNotary,
		SourceID:     doc.ID,
	}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notary_documents")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notary_documents SET general_document_id = $1 WHERE id = $2")).
		WithArgs(general.ID.String(), doc.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.CreateWithGeneral(context.Background(), &doc, general); err != nil {
		t.Fatalf("CreateWithGeneral() error = %v", err)
	}
	if doc.GeneralDocumentID == nil || *doc.GeneralDocumentID != general.ID {
		t.Errorf("GeneralDocumentID = %v, want %v", doc.GeneralDocumentID, general.ID)
	}
	if !doc.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", doc.CreatedAt, now)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateWithGeneralDuplicateCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantDup bool
	}{
		{
			name:    "verification code collision",
			err:     &pq.Error{Code: "23505", Constraint: verificationCodeConstraint},
			wantDup: true,
		},
		{
			name:    "other unique violation",
			err:     &pq.Error{Code: "23505", Constraint: "notary_documents_pkey"},
			wantDup: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewDocumentRepository(db)
			doc := sampleDocument()

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notary_documents")).WillReturnError(tt.err)
			mock.ExpectRollback()

			err := repo.CreateWithGeneral(context.Background(), &doc, &domain.GeneralDocument{ID: uuid.New()})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, domain.ErrDuplicateCode); got != tt.wantDup {
				t.Errorf("errors.Is(ErrDuplicateCode) = %v, want %v (err: %v)", got, tt.wantDup, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestCertify(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	certifiedAt := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	generalID := uuid.New()
	stamped := "uploads/notary_documents/file-1709287200000-123456789_certified_1709371800000.pdf"

	certified := sampleDocument()
	certified.Status = domain.StatusCertified
	certified.CertifiedBy = strPtr("C456")
	certified.CertifiedAt = &certifiedAt
	certified.CertifiedFilePath = strPtr(stamped)
	certified.CertifiedFileName = strPtr("poder_certified.pdf")
	certified.CertifiedFileType = strPtr(domain.MIMETypePDF)
	certified.GeneralDocumentID = &generalID

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notary_documents")).
		WithArgs("C456", certifiedAt, stamped, "poder_certified.pdf", domain.MIMETypePDF, certified.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM notary_documents WHERE id = $1")).
		WillReturnRows(documentRows(certified))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notary_certifications")).
		WithArgs(sqlmock.AnyArg(), certified.ID.String(), "C456", certifiedAt, domain.MethodDigitalStamp,
			nil, certified.FilePath, certified.FileName, "Carla Notaria", "certifier").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("certified", stamped, generalID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc, err := repo.Certify(context.Background(), CertifyParams{
		DocumentID:        certified.ID,
		CertifierID:       "C456",
		CertifierName:     "Carla Notaria",
		CertifierRole:     "certifier",
		CertifiedAt:       certifiedAt,
		Method:            domain.MethodDigitalStamp,
		CertifiedFilePath: stamped,
		CertifiedFileName: "poder_certified.pdf",
		CertifiedFileType: domain.MIMETypePDF,
	})
	if err != nil {
		t.Fatalf("Certify() error = %v", err)
	}
	if doc.Status != domain.StatusCertified || doc.CertifiedBy == nil || *doc.CertifiedBy != "C456" {
		t.Errorf("Certify() doc = %+v", doc)
	}
	if doc.Metadata["urgency"] != "normal" {
		t.Errorf("Metadata = %v", doc.Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCertifyGuard(t *testing.T) {
	tests := []struct {
		name       string
		statusRows *sqlmock.Rows
		wantErr    error
		wantStatus domain.DocumentStatus
	}{
		{
			name:       "already certified",
			statusRows: sqlmock.NewRows([]string{"status"}).AddRow("certified"),
			wantErr:    domain.ErrInvalidState,
			wantStatus: domain.StatusCertified,
		},
		{
			name:       "rejected",
			statusRows: sqlmock.NewRows([]string{"status"}).AddRow("rejected"),
			wantErr:    domain.ErrInvalidState,
			wantStatus: domain.StatusRejected,
		},
		{
			name:       "missing document",
			statusRows: sqlmock.NewRows([]string{"status"}),
			wantErr:    domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewDocumentRepository(db)
			id := uuid.New()

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("UPDATE notary_documents")).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM notary_documents WHERE id = $1")).
				WithArgs(id.String()).
				WillReturnRows(tt.statusRows)
			mock.ExpectRollback()

			_, err := repo.Certify(context.Background(), CertifyParams{DocumentID: id, CertifierID: "C789"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Certify() error = %v, want %v", err, tt.wantErr)
			}
			var stateErr *domain.StateError
			if tt.wantStatus != "" {
				if !errors.As(err, &stateErr) || stateErr.Current != tt.wantStatus {
					t.Errorf("StateError = %+v, want current %q", stateErr, tt.wantStatus)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestReject(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	rejectedAt := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	rejected := sampleDocument()
	rejected.Status = domain.StatusRejected
	rejected.RejectedBy = strPtr("C456")
	rejected.RejectedAt = &rejectedAt
	rejected.RejectionReason = strPtr("illegible scan")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notary_documents")).
		WithArgs("C456", rejectedAt, "illegible scan", rejected.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM notary_documents WHERE id = $1")).
		WillReturnRows(documentRows(rejected))
	mock.ExpectCommit()

	doc, err := repo.Reject(context.Background(), RejectParams{
		DocumentID: rejected.ID,
		RejectedBy: "C456",
		RejectedAt: rejectedAt,
		Reason:     "illegible scan",
	})
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if doc.Status != domain.StatusRejected || doc.CertifiedBy != nil {
		t.Errorf("Reject() doc = %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetByCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	doc := sampleDocument()

	mock.ExpectQuery(regexp.QuoteMeta("FROM notary_documents WHERE verification_code = $1")).
		WithArgs("ABC-123").
		WillReturnRows(documentRows(doc))
	mock.ExpectQuery(regexp.QuoteMeta("FROM notary_documents WHERE verification_code = $1")).
		WithArgs("ZZZ-999").
		WillReturnRows(sqlmock.NewRows(documentColumns))

	got, err := repo.GetByCode(context.Background(), "ABC-123")
	if err != nil {
		t.Fatalf("GetByCode() error = %v", err)
	}
	if got.ID != doc.ID || got.Status != domain.StatusPending || got.CertifiedBy != nil {
		t.Errorf("GetByCode() = %+v", got)
	}

	if _, err := repo.GetByCode(context.Background(), "ZZZ-999"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetByCode(unknown) error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListPending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)
	doc := sampleDocument()

	cols := append(append([]string{}, documentColumns...), "uploader_name", "uploader_email")
	values := append(documentValues(doc), "Ursula", "ursula@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN users u ON u.id = d.user_id")).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(values...))

	docs, err := repo.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len = %d, want 1", len(docs))
	}
	if docs[0].UploaderName != "Ursula" || docs[0].VerificationCode != "ABC-123" {
		t.Errorf("ListPending()[0] = %+v", docs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListByOwnerEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1")).
		WithArgs("U999").
		WillReturnRows(sqlmock.NewRows(documentColumns))

	docs, err := repo.ListByOwner(context.Background(), "U999")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("ListByOwner() = %v, want empty non-nil slice", docs)
	}
}
