package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"notarypro/internal/auth"
	"notarypro/internal/domain"
	"notarypro/internal/events"
	"notarypro/internal/qr"
	"notarypro/internal/repository"
	"notarypro/internal/stamp"
	"notarypro/internal/storage"
	"notarypro/internal/verifycode"
)

const maxCodeAttempts = 5

type DocumentStore interface {
	CreateWithGeneral(ctx context.Context, doc *domain.Document, general *domain.GeneralDocument) error
	Certify(ctx context.Context, p repository.CertifyParams) (*domain.Document, error)
	Reject(ctx context.Context, p repository.RejectParams) (*domain.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	GetByCode(ctx context.Context, code string) (*domain.Document, error)
	ListPending(ctx context.Context) ([]domain.PendingDocument, error)
	ListByOwner(ctx context.Context, userID string) ([]domain.Document, error)
	LatestCertification(ctx context.Context, documentID uuid.UUID) (*domain.Certification, error)
}

type TemplateStore interface {
	ListActive(ctx context.Context) ([]domain.Template, error)
}

type FileStore interface {
	Store(ctx context.Context, up storage.Upload) (*storage.StoredFile, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type Stamper interface {
	Stamp(ctx context.Context, req stamp.Request) (*stamp.Result, error)
}

type UserDirectory interface {
	Lookup(ctx context.Context, id string) (domain.User, bool, error)
}

type UploadInput struct {
	Title        string         `json:"title" validate:"required,max=255"`
	Description  string         `json:"description" validate:"max=2000"`
	DocumentType string         `json:"documentType" validate:"required,max=100"`
	Urgency      string         `json:"urgency" validate:"max=32"`
	File         storage.Upload `json:"-" validate:"-"`
}

type CertifyInput struct {
	DocumentID uuid.UUID       `json:"-" validate:"-"`
	Note       string          `json:"certificationNote" validate:"max=2000"`
	Method     string          `json:"certificationMethod" validate:"omitempty,oneof=digital_stamp signed_upload standard"`
	SignedFile *storage.Upload `json:"-" validate:"-"`
}

type RejectInput struct {
	DocumentID uuid.UUID `json:"-" validate:"-"`
	Reason     string    `json:"reason" validate:"required,max=2000"`
}

type CertifierInfo struct {
	Name string `json:"name"`
}

type VerifyResult struct {
	Verified  bool                   `json:"verified"`
	Message   string                 `json:"message,omitempty"`
	Document  *domain.PublicDocument `json:"document,omitempty"`
	Certifier *CertifierInfo         `json:"certifier,omitempty"`
}

type QRInfo struct {
	VerificationCode string `json:"verificationCode"`
	VerificationURL  string `json:"verificationUrl"`
	QRCodeURL        string `json:"qrCodeUrl"`
}

// Artifact is an open document file. Callers must close Body.
type Artifact struct {
	Body        io.ReadCloser
	FileName    string
	ContentType string
}

// CertificationService drives the document lifecycle from upload to certification.
type CertificationService struct {
	docs      DocumentStore
	templates TemplateStore
	files     FileStore
	stamper   Stamper
	users     UserDirectory
	publisher events.Publisher
	baseURL   string
	logger    *zap.Logger
	validate  *validator.Validate

	now     func() time.Time
	newCode func() (string, error)
}

func NewCertificationService(
	docs DocumentStore,
	templates TemplateStore,
	files FileStore,
	stamper Stamper,
	users UserDirectory,
	publisher events.Publisher,
	baseURL string,
	logger *zap.Logger,
) *CertificationService {
	if publisher == nil {
		publisher = events.NewNoop()
	}
	return &CertificationService{
		docs:      docs,
		templates: templates,
		files:     files,
		stamper:   stamper,
		users:     users,
		publisher: publisher,
		baseURL:   baseURL,
		logger:    logger,
		validate:  newValidator(),
		now:       time.Now,
		newCode:   verifycode.Generate,
	}
}

// Upload stores the file and creates a pending document with a fresh verification code.
func (s *CertificationService) Upload(ctx context.Context, p *auth.Principal, in UploadInput) (*domain.Document, error) {
	if err := auth.Check(p, auth.Authenticated); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.DocumentType = strings.TrimSpace(in.DocumentType)
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}
	if in.File.Body == nil {
		return nil, fmt.Errorf("%w: file is required", domain.ErrValidation)
	}

	stored, err := s.files.Store(ctx, in.File)
	if err != nil {
		return nil, err
	}

	metadata := domain.Metadata{}
	if in.Urgency != "" {
		metadata["urgency"] = in.Urgency
	}

	doc := &domain.Document{
		ID:           uuid.New(),
		Title:        in.Title,
		Description:  in.Description,
		FilePath:     stored.Path,
		FileName:     stored.FileName,
		FileSize:     stored.Size,
		FileType:     stored.FileType,
		DocumentType: in.DocumentType,
		Status:       domain.StatusPending,
		UserID:       p.UserID,
		Metadata:     metadata,
	}
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

	if err := s.createWithUniqueCode(ctx, doc, general); err != nil {
		if delErr := s.files.Delete(ctx, stored.Path); delErr != nil {
			s.logger.Error("failed to remove orphaned upload", zap.String("path", stored.Path), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("user_id", p.UserID),
		zap.String("file_type", doc.FileType),
	)
	s.publish(ctx, events.TypeDocumentUploaded, doc, p.UserID, events.DocumentEvent{})

	return doc, nil
}

func (s *CertificationService) createWithUniqueCode(ctx context.Context, doc *domain.Document, general *domain.GeneralDocument) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return err
		}
		doc.VerificationCode = code

		err = s.docs.CreateWithGeneral(ctx, doc, general)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateCode) {
			return fmt.Errorf("failed to create document: %w", err)
		}
		s.logger.Warn("verification code collision", zap.String("code", code), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("failed to allocate verification code after %d attempts: %w", maxCodeAttempts, domain.ErrDuplicateCode)
}

// Certify transitions a pending document to certified and produces its certified artifact.
func (s *CertificationService) Certify(ctx context.Context, p *auth.Principal, in CertifyInput) (*domain.Document, error) {
	if err := auth.Check(p, auth.CanReview); err != nil {
		return nil, err
	}
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}

	doc, err := s.docs.GetByID(ctx, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusPending {
		return nil, &domain.StateError{Op: "certify", Current: doc.Status}
	}

	if err := checkRequestedMethod(in, doc); err != nil {
		return nil, err
	}

	certifierName := s.displayName(ctx, p)
	certifiedAt := s.now().UTC()

	artifactPath, artifactName, artifactType := doc.FilePath, doc.FileName, doc.FileType
	method := domain.MethodStandard
	var created string

	switch {
	case in.SignedFile != nil:
		up := *in.SignedFile
		up.FieldName = "signedFile"
		stored, err := s.files.Store(ctx, up)
		if err != nil {
			return nil, err
		}
		artifactPath, artifactName, artifactType = stored.Path, stored.FileName, stored.FileType
		method = domain.MethodSignedUpload
		created = stored.Path

	case doc.IsPDF() && in.Method != domain.MethodStandard:
		res, err := s.stamper.Stamp(ctx, stamp.Request{
			SourcePath:    doc.FilePath,
			CertifierName: certifierName,
			Code:          doc.VerificationCode,
			CertifiedAt:   certifiedAt,
		})
		if err != nil {
			s.logger.Warn("pdf stamping failed, certifying original",
				zap.String("document_id", doc.ID.String()),
				zap.Error(err),
			)
			break
		}
		artifactPath, artifactName, artifactType = res.Path, certifiedFileName(doc.FileName), domain.MIMETypePDF
		method = domain.MethodDigitalStamp
		created = res.Path
	}

	var note *string
	if n := strings.TrimSpace(in.Note); n != "" {
		note = &n
	}

	updated, err := s.docs.Certify(ctx, repository.CertifyParams{
		DocumentID:        doc.ID,
		CertifierID:       p.UserID,
		CertifierName:     certifierName,
		CertifierRole:     string(p.Role),
		CertifiedAt:       certifiedAt,
		Method:            method,
		Note:              note,
		CertifiedFilePath: artifactPath,
		CertifiedFileName: artifactName,
		CertifiedFileType: artifactType,
	})
	if err != nil {
		if created != "" {
			if delErr := s.files.Delete(ctx, created); delErr != nil {
				s.logger.Error("failed to remove unused certified artifact", zap.String("path", created), zap.Error(delErr))
			}
		}
		return nil, err
	}

	s.logger.Info("document certified",
		zap.String("document_id", updated.ID.String()),
		zap.String("certifier_id", p.UserID),
		zap.String("method", method),
	)
	s.publish(ctx, events.TypeDocumentCertified, updated, p.UserID, events.DocumentEvent{Method: method})

	return updated, nil
}

// Reject closes a pending document without certification.
func (s *CertificationService) Reject(ctx context.Context, p *auth.Principal, in RejectInput) (*domain.Document, error) {
	if err := auth.Check(p, auth.CanReview); err != nil {
		return nil, err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}

	doc, err := s.docs.Reject(ctx, repository.RejectParams{
		DocumentID: in.DocumentID,
		RejectedBy: p.UserID,
		RejectedAt: s.now().UTC(),
		Reason:     in.Reason,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document rejected",
		zap.String("document_id", doc.ID.String()),
		zap.String("certifier_id", p.UserID),
	)
	s.publish(ctx, events.TypeDocumentRejected, doc, p.UserID, events.DocumentEvent{Reason: in.Reason})

	return doc, nil
}

// Verify never fails for unknown codes; only storage errors are returned.
func (s *CertificationService) Verify(ctx context.Context, code string) (*VerifyResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !verifycode.Valid(code) {
		return &VerifyResult{Verified: false, Message: "Invalid verification code format"}, nil
	}

	doc, err := s.docs.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return &VerifyResult{Verified: false, Message: "Document not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{
		Verified: doc.Status == domain.StatusCertified,
		Document: doc.Public(),
	}
	switch doc.Status {
	case domain.StatusCertified:
		res.Message = "Document is certified"
		res.Certifier = &CertifierInfo{Name: s.certifierName(ctx, doc)}
	case domain.StatusRejected:
		res.Message = "Document was rejected"
	default:
		res.Message = "Document is pending certification"
	}
	return res, nil
}

func (s *CertificationService) certifierName(ctx context.Context, doc *domain.Document) string {
	if doc.CertifiedBy == nil {
		return ""
	}
	if s.users != nil {
		u, ok, err := s.users.Lookup(ctx, *doc.CertifiedBy)
		if err != nil {
			s.logger.Warn("certifier lookup failed", zap.String("certifier_id", *doc.CertifiedBy), zap.Error(err))
		}
		if ok && u.Name != "" {
			return u.Name
		}
	}
	cert, err := s.docs.LatestCertification(ctx, doc.ID)
	if err == nil && cert.CertifierName != "" {
		return cert.CertifierName
	}
	return *doc.CertifiedBy
}

func (s *CertificationService) displayName(ctx context.Context, p *auth.Principal) string {
	if p.Name != "" {
		return p.Name
	}
	if s.users != nil {
		if u, ok, err := s.users.Lookup(ctx, p.UserID); err == nil && ok && u.Name != "" {
			return u.Name
		}
	}
	return p.UserID
}

func (s *CertificationService) QR(ctx context.Context, id uuid.UUID) (*QRInfo, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	verifyURL := qr.VerificationURL(s.baseURL, doc.VerificationCode)
	dataURL, err := qr.DataURL(verifyURL, qr.DefaultSize)
	if err != nil {
		return nil, err
	}

	return &QRInfo{
		VerificationCode: doc.VerificationCode,
		VerificationURL:  verifyURL,
		QRCodeURL:        dataURL,
	}, nil
}

// Download opens the original file, or the certified artifact when certified is set.
func (s *CertificationService) Download(ctx context.Context, id uuid.UUID, certified bool) (*Artifact, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	filePath, name, contentType := doc.FilePath, doc.FileName, doc.FileType
	if certified {
		var ok bool
		filePath, name, contentType, ok = doc.CertifiedArtifact()
		if !ok {
			return nil, &domain.StateError{Op: "download certified", Current: doc.Status}
		}
	}

	body, err := s.files.Open(ctx, filePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: file missing from storage", domain.ErrNotFound)
		}
		return nil, err
	}

	return &Artifact{Body: body, FileName: name, ContentType: contentType}, nil
}

func (s *CertificationService) Pending(ctx context.Context, p *auth.Principal) ([]domain.PendingDocument, error) {
	if err := auth.Check(p, auth.CanReview); err != nil {
		return nil, err
	}
	return s.docs.ListPending(ctx)
}

func (s *CertificationService) MyDocuments(ctx context.Context, p *auth.Principal) ([]domain.Document, error) {
	if err := auth.Check(p, auth.Authenticated); err != nil {
		return nil, err
	}
	return s.docs.ListByOwner(ctx, p.UserID)
}

func (s *CertificationService) Templates(ctx context.Context) ([]domain.Template, error) {
	return s.templates.ListActive(ctx)
}

// publish never fails the caller; delivery problems are only logged.
func (s *CertificationService) publish(ctx context.Context, eventType string, doc *domain.Document, actorID string, payload events.DocumentEvent) {
	payload.DocumentID = doc.ID.String()
	payload.VerificationCode = doc.VerificationCode
	payload.Status = string(doc.Status)
	payload.OwnerID = doc.UserID
	payload.ActorID = actorID
	payload.DocumentType = doc.DocumentType

	if err := s.publisher.Publish(ctx, events.New(eventType, payload.DocumentID, payload)); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", eventType),
			zap.String("document_id", payload.DocumentID),
			zap.Error(err),
		)
	}
}

// checkRequestedMethod rejects a requested method the submission cannot satisfy.
// The recorded method is always the one actually applied.
func checkRequestedMethod(in CertifyInput, doc *domain.Document) error {
	switch in.Method {
	case "":
		return nil
	case domain.MethodSignedUpload:
		if in.SignedFile == nil {
			return fmt.Errorf("%w: signedFile is required for %s", domain.ErrValidation, in.Method)
		}
	case domain.MethodDigitalStamp:
		if in.SignedFile != nil {
			return fmt.Errorf("%w: signedFile cannot be combined with %s", domain.ErrValidation, in.Method)
		}
		if !doc.IsPDF() {
			return fmt.Errorf("%w: %s requires a PDF document", domain.ErrValidation, in.Method)
		}
	case domain.MethodStandard:
		if in.SignedFile != nil {
			return fmt.Errorf("%w: signedFile cannot be combined with %s", domain.ErrValidation, in.Method)
		}
	}
	return nil
}

func certifiedFileName(original string) string {
	ext := path.Ext(original)
	return strings.TrimSuffix(original, ext) + "_certified.pdf"
}
