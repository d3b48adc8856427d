package domain

import (
	"time"

	"github.com/google/uuid"
)

const SourceModuleNotary = "notary"

// GeneralDocument mirrors a module document for cross-module listings.
type GeneralDocument struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	DocumentType string    `json:"document_type" db:"document_type"`
	Status       string    `json:"status" db:"status"`
	FilePath     string    `json:"file_path" db:"file_path"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	SourceModule string    `json:"source_module" db:"source_module"`
	SourceID     uuid.UUID `json:"source_id" db:"source_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
