package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"notarypro/internal/domain"
)

type TemplateRepository struct {
	db *sqlx.DB
}

func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) ListActive(ctx context.Context) ([]domain.Template, error) {
	query := `
        SELECT id, code, name, description, document_type, price_cents, active, created_at
        FROM certification_templates
        WHERE active = true
        ORDER BY id`

	templates := []domain.Template{}
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}
