package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MethodDigitalStamp = "digital_stamp"
	MethodSignedUpload = "signed_upload"
	MethodStandard     = "standard"
)

// Certification is the audit record written once per successful certification.
// File and certifier fields are snapshots taken at certification time.
type Certification struct {
	ID               uuid.UUID `json:"id" db:"id"`
	DocumentID       uuid.UUID `json:"document_id" db:"document_id"`
	CertifierID      string    `json:"certifier_id" db:"certifier_id"`
	CertifiedAt      time.Time `json:"certified_at" db:"certified_at"`
	Method           string    `json:"method" db:"method"`
	Note             *string   `json:"note,omitempty" db:"note"`
	OriginalFilePath string    `json:"original_file_path" db:"original_file_path"`
	OriginalFileName string    `json:"original_file_name" db:"original_file_name"`
	CertifierName    string    `json:"certifier_name" db:"certifier_name"`
	CertifierRole    string    `json:"certifier_role" db:"certifier_role"`
}
