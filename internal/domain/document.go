package domain

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusCertified DocumentStatus = "certified"
	StatusRejected  DocumentStatus = "rejected"
)

const MIMETypePDF = "application/pdf"

// Document is the certifiable unit owned by the notary workflow.
// Status is certified if and only if CertifiedBy and CertifiedAt are set.
type Document struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	Title             string         `json:"title" db:"title"`
	Description       string         `json:"description" db:"description"`
	FilePath          string         `json:"file_path" db:"file_path"`
	FileName          string         `json:"file_name" db:"file_name"`
	FileSize          int64          `json:"file_size" db:"file_size"`
	FileType          string         `json:"file_type" db:"file_type"`
	CertifiedFilePath *string        `json:"certified_file_path,omitempty" db:"certified_file_path"`
	CertifiedFileName *string        `json:"certified_file_name,omitempty" db:"certified_file_name"`
	CertifiedFileType *string        `json:"certified_file_type,omitempty" db:"certified_file_type"`
	DocumentType      string         `json:"document_type" db:"document_type"`
	Status            DocumentStatus `json:"status" db:"status"`
	VerificationCode  string         `json:"verification_code" db:"verification_code"`
	UserID            string         `json:"user_id" db:"user_id"`
	CertifiedBy       *string        `json:"certified_by,omitempty" db:"certified_by"`
	CertifiedAt       *time.Time     `json:"certified_at,omitempty" db:"certified_at"`
	RejectedBy        *string        `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt        *time.Time     `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectionReason   *string        `json:"rejection_reason,omitempty" db:"rejection_reason"`
	GeneralDocumentID *uuid.UUID     `json:"general_document_id,omitempty" db:"general_document_id"`
	Metadata          Metadata       `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

func (d *Document) IsPDF() bool {
	return d.FileType == MIMETypePDF
}

// CertifiedArtifact returns the path, name and MIME type served for certified downloads.
func (d *Document) CertifiedArtifact() (path, name, mimeType string, ok bool) {
	if d.Status != StatusCertified || d.CertifiedFilePath == nil {
		return "", "", "", false
	}
	name = d.FileName
	if d.CertifiedFileName != nil {
		name = *d.CertifiedFileName
	}
	mimeType = d.FileType
	if d.CertifiedFileType != nil {
		mimeType = *d.CertifiedFileType
	}
	return *d.CertifiedFilePath, name, mimeType, true
}

// PendingDocument is a pending document joined with its uploader identity.
type PendingDocument struct {
	Document
	UploaderName  string `json:"uploader_name" db:"uploader_name"`
	UploaderEmail string `json:"uploader_email" db:"uploader_email"`
}

// PublicDocument is the projection exposed by the public verification lookup.
type PublicDocument struct {
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	DocumentType     string         `json:"document_type"`
	Status           DocumentStatus `json:"status"`
	VerificationCode string         `json:"verification_code"`
	CreatedAt        time.Time      `json:"created_at"`
	CertifiedAt      *time.Time     `json:"certified_at,omitempty"`
}

func (d *Document) Public() *PublicDocument {
	return &PublicDocument{
		Title:            d.Title,
		Description:      d.Description,
		DocumentType:     d.DocumentType,
		Status:           d.Status,
		VerificationCode: d.VerificationCode,
		CreatedAt:        d.CreatedAt,
		CertifiedAt:      d.CertifiedAt,
	}
}
