package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"notarypro/internal/domain"
	"notarypro/internal/events"
	"notarypro/internal/repository"
	"notarypro/internal/stamp"
)

// memDocs mirrors the repository contract in memory, including the pending-only guard.
type memDocs struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]domain.Document
	generals map[uuid.UUID]domain.GeneralDocument
	certs    map[uuid.UUID]domain.Certification

	createFunc  func(doc *domain.Document) error
	certifyFunc func(p repository.CertifyParams) (*domain.Document, error)
}

func newMemDocs() *memDocs {
	return &memDocs{
		docs:     make(map[uuid.UUID]domain.Document),
		generals: make(map[uuid.UUID]domain.GeneralDocument),
		certs:    make(map[uuid.UUID]domain.Certification),
	}
}

func (m *memDocs) CreateWithGeneral(ctx context.Context, doc *domain.Document, general *domain.GeneralDocument) error {
	if m.createFunc != nil {
		if err := m.createFunc(doc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.VerificationCode == doc.VerificationCode {
			return domain.ErrDuplicateCode
		}
	}
	doc.GeneralDocumentID = &general.ID
	m.docs[doc.ID] = *doc
	m.generals[general.ID] = *general
	return nil
}

func (m *memDocs) Certify(ctx context.Context, p repository.CertifyParams) (*domain.Document, error) {
	if m.certifyFunc != nil {
		return m.certifyFunc(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[p.DocumentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if doc.Status != domain.StatusPending {
		return nil, &domain.StateError{Op: "certify", Current: doc.Status}
	}
	at := p.CertifiedAt
	by := p.CertifierID
	path, name, typ := p.CertifiedFilePath, p.CertifiedFileName, p.CertifiedFileType
	doc.Status = domain.StatusCertified
	doc.CertifiedBy = &by
	doc.CertifiedAt = &at
	doc.CertifiedFilePath = &path
	doc.CertifiedFileName = &name
	doc.CertifiedFileType = &typ
	m.docs[doc.ID] = doc
	m.certs[doc.ID] = domain.Certification{
		ID:               uuid.New(),
		DocumentID:       doc.ID,
		CertifierID:      p.CertifierID,
		CertifiedAt:      at,
		Method:           p.Method,
		Note:             p.Note,
		OriginalFilePath: doc.FilePath,
		OriginalFileName: doc.FileName,
		CertifierName:    p.CertifierName,
		CertifierRole:    p.CertifierRole,
	}
	if doc.GeneralDocumentID != nil {
		g := m.generals[*doc.GeneralDocumentID]
		g.Status = string(domain.StatusCertified)
		g.FilePath = path
		m.generals[g.ID] = g
	}
	return &doc, nil
}

func (m *memDocs) Reject(ctx context.Context, p repository.RejectParams) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[p.DocumentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if doc.Status != domain.StatusPending {
		return nil, &domain.StateError{Op: "reject", Current: doc.Status}
	}
	by, at, reason := p.RejectedBy, p.RejectedAt, p.Reason
	doc.Status = domain.StatusRejected
	doc.RejectedBy = &by
	doc.RejectedAt = &at
	doc.RejectionReason = &reason
	m.docs[doc.ID] = doc
	return &doc, nil
}

func (m *memDocs) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

func (m *memDocs) GetByCode(ctx context.Context, code string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.VerificationCode == code {
			doc := d
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDocs) ListPending(ctx context.Context) ([]domain.PendingDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.PendingDocument{}
	for _, d := range m.docs {
		if d.Status == domain.StatusPending {
			out = append(out, domain.PendingDocument{Document: d})
		}
	}
	return out, nil
}

func (m *memDocs) ListByOwner(ctx context.Context, userID string) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Document{}
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocs) LatestCertification(ctx context.Context, documentID uuid.UUID) (*domain.Certification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.certs[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

type mockTemplates struct {
	listFunc func(ctx context.Context) ([]domain.Template, error)
}

func (m *mockTemplates) ListActive(ctx context.Context) ([]domain.Template, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []domain.Template{}, nil
}

type mockStamper struct {
	stampFunc func(ctx context.Context, req stamp.Request) (*stamp.Result, error)
	calls     int
}

func (m *mockStamper) Stamp(ctx context.Context, req stamp.Request) (*stamp.Result, error) {
	m.calls++
	return m.stampFunc(ctx, req)
}

type mockDirectory struct {
	users map[string]domain.User
}

func (m *mockDirectory) Lookup(ctx context.Context, id string) (domain.User, bool, error) {
	u, ok := m.users[id]
	return u, ok, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
