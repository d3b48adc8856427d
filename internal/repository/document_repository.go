package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"notarypro/internal/domain"
)

const verificationCodeConstraint = "notary_documents_verification_code_key"

var documentColumns = []string{
	"id", "title", "description", "file_path", "file_name", "file_size", "file_type",
	"certified_file_path", "certified_file_name", "certified_file_type", "document_type",
	"status", "verification_code", "user_id", "certified_by", "certified_at", "rejected_by",
	"rejected_at", "rejection_reason", "general_document_id", "metadata", "created_at",
	"updated_at",
}

func selectDocumentColumns(alias string) string {
	if alias == "" {
		return strings.Join(documentColumns, ", ")
	}
	cols := make([]string, len(documentColumns))
	for i, c := range documentColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type DocumentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CertifyParams carries everything written by a successful certification.
type CertifyParams struct {
	DocumentID        uuid.UUID
	CertifierID       string
	CertifierName     string
	CertifierRole     string
	CertifiedAt       time.Time
	Method            string
	Note              *string
	CertifiedFilePath string
	CertifiedFileName string
	CertifiedFileType string
}

type RejectParams struct {
	DocumentID uuid.UUID
	RejectedBy string
	RejectedAt time.Time
	Reason     string
}

// CreateWithGeneral inserts the document and its general-document mirror and links them.
func (r *DocumentRepository) CreateWithGeneral(ctx context.Context, doc *domain.Document, general *domain.GeneralDocument) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO notary_documents (
            id, title, description, file_path, file_name, file_size, file_type,
            document_type, status, verification_code, user_id, metadata
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING created_at, updated_at`

	err = tx.QueryRowContext(
		ctx,
		query,
		doc.ID,
		doc.Title,
		doc.Description,
		doc.FilePath,
		doc.FileName,
		doc.FileSize,
		doc.FileType,
		doc.DocumentType,
		doc.Status,
		doc.VerificationCode,
		doc.UserID,
		doc.Metadata,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if isVerificationCodeConflict(err) {
			return domain.ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	generalQuery := `
        INSERT INTO documents (
            id, title, document_type, status, file_path, owner_id, source_module, source_id
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`

	err = tx.QueryRowContext(
		ctx,
		generalQuery,
		general.ID,
		general.Title,
		general.DocumentType,
		general.Status,
		general.FilePath,
		general.OwnerID,
		general.SourceModule,
		general.SourceID,
	).Scan(&general.CreatedAt, &general.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert general document: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE notary_documents SET general_document_id = $1 WHERE id = $2`,
		general.ID, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to link general document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	doc.GeneralDocumentID = &general.ID
	return nil
}

// Certify moves a pending document to certified. Only the first caller wins;
// later callers get a StateError carrying the status they lost to.
func (r *DocumentRepository) Certify(ctx context.Context, p CertifyParams) (*domain.Document, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        UPDATE notary_documents
        SET status = 'certified',
            certified_by = $1,
            certified_at = $2,
            certified_file_path = $3,
            certified_file_name = $4,
            certified_file_type = $5,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $6 AND status = 'pending'`

	result, err := tx.ExecContext(ctx, query,
		p.CertifierID,
		p.CertifiedAt,
		p.CertifiedFilePath,
		p.CertifiedFileName,
		p.CertifiedFileType,
		p.DocumentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to certify document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, r.transitionError(ctx, tx, p.DocumentID, "certify")
	}

	doc, err := getDocument(ctx, tx, "id", p.DocumentID)
	if err != nil {
		return nil, err
	}

	certQuery := `
        INSERT INTO notary_certifications (
            id, document_id, certifier_id, certified_at, method, note,
            original_file_path, original_file_name, certifier_name, certifier_role
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.ExecContext(ctx, certQuery,
		uuid.New(),
		doc.ID,
		p.CertifierID,
		p.CertifiedAt,
		p.Method,
		p.Note,
		doc.FilePath,
		doc.FileName,
		p.CertifierName,
		p.CertifierRole,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record certification: %w", err)
	}

	if doc.GeneralDocumentID != nil {
		if err := mirrorGeneral(ctx, tx, *doc.GeneralDocumentID, domain.StatusCertified, p.CertifiedFilePath); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit certification: %w", err)
	}
	return doc, nil
}

// Reject moves a pending document to rejected. Rejection is terminal.
func (r *DocumentRepository) Reject(ctx context.Context, p RejectParams) (*domain.Document, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        UPDATE notary_documents
        SET status = 'rejected',
            rejected_by = $1,
            rejected_at = $2,
            rejection_reason = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $4 AND status = 'pending'`

	result, err := tx.ExecContext(ctx, query, p.RejectedBy, p.RejectedAt, p.Reason, p.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reject document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, r.transitionError(ctx, tx, p.DocumentID, "reject")
	}

	doc, err := getDocument(ctx, tx, "id", p.DocumentID)
	if err != nil {
		return nil, err
	}

	if doc.GeneralDocumentID != nil {
		if err := mirrorGeneral(ctx, tx, *doc.GeneralDocumentID, domain.StatusRejected, doc.FilePath); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) transitionError(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, op string) error {
	var status domain.DocumentStatus
	err := tx.GetContext(ctx, &status, `SELECT status FROM notary_documents WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load document status: %w", err)
	}
	return &domain.StateError{Op: op, Current: status}
}

func mirrorGeneral(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.DocumentStatus, filePath string) error {
	query := `
        UPDATE documents
        SET status = $1, file_path = $2, updated_at = CURRENT_TIMESTAMP
        WHERE id = $3`

	if _, err := tx.ExecContext(ctx, query, status, filePath, id); err != nil {
		return fmt.Errorf("failed to update general document: %w", err)
	}
	return nil
}

func getDocument(ctx context.Context, q sqlx.QueryerContext, column string, value interface{}) (*domain.Document, error) {
	var doc domain.Document
	query := fmt.Sprintf(`SELECT %s FROM notary_documents WHERE %s = $1`, selectDocumentColumns(""), column)

	if err := sqlx.GetContext(ctx, q, &doc, query, value); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return getDocument(ctx, r.db, "id", id)
}

func (r *DocumentRepository) GetByCode(ctx context.Context, code string) (*domain.Document, error) {
	return getDocument(ctx, r.db, "verification_code", code)
}

// ListPending returns pending documents oldest first, with uploader identity.
func (r *DocumentRepository) ListPending(ctx context.Context) ([]domain.PendingDocument, error) {
	query := fmt.Sprintf(`
        SELECT %s,
            COALESCE(u.name, '') AS uploader_name,
            COALESCE(u.email, '') AS uploader_email
        FROM notary_documents d
        LEFT JOIN users u ON u.id = d.user_id
        WHERE d.status = 'pending'
        ORDER BY d.created_at ASC`, selectDocumentColumns("d"))

	docs := []domain.PendingDocument{}
	if err := r.db.SelectContext(ctx, &docs, query); err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, userID string) ([]domain.Document, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM notary_documents
        WHERE user_id = $1
        ORDER BY created_at DESC`, selectDocumentColumns(""))

	docs := []domain.Document{}
	if err := r.db.SelectContext(ctx, &docs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// LatestCertification returns the certification record of a document.
func (r *DocumentRepository) LatestCertification(ctx context.Context, documentID uuid.UUID) (*domain.Certification, error) {
	query := `
        SELECT id, document_id, certifier_id, certified_at, method, note,
            original_file_path, original_file_name, certifier_name, certifier_role
        FROM notary_certifications
        WHERE document_id = $1
        ORDER BY certified_at DESC
        LIMIT 1`

	var c domain.Certification
	if err := r.db.GetContext(ctx, &c, query, documentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get certification: %w", err)
	}
	return &c, nil
}

func isVerificationCodeConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == verificationCodeConstraint
}
