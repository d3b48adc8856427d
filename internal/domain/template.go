package domain

import "time"

type Template struct {
	ID           int64     `json:"id" db:"id"`
	Code         string    `json:"code" db:"code"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	DocumentType string    `json:"document_type" db:"document_type"`
	PriceCents   int64     `json:"price_cents" db:"price_cents"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
