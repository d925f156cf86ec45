package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TemplateRepository handles database operations for notification templates.
type TemplateRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

const templateColumns = `
	id, name, category, description,
	email_subject, email_html, email_text,
	sms_template, push_title, push_body,
	in_app_title, in_app_message,
	provider_template_id, variables, active,
	created_at, updated_at`

func scanTemplate(row rowScanner) (*Template, error) {
	var t Template
	err := row.Scan(
		&t.ID, &t.Name, &t.Category, &t.Description,
		&t.EmailSubject, &t.EmailHTML, &t.EmailText,
		&t.SMSTemplate, &t.PushTitle, &t.PushBody,
		&t.InAppTitle, &t.InAppMessage,
		&t.ProviderTemplateID, &t.Variables, &t.Active,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetActiveByName looks up an active template by its unique name. Returns
// (nil, nil) when no active template with that name exists.
func (r *TemplateRepository) GetActiveByName(ctx context.Context, name string) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE name = $1 AND active = TRUE`

	t, err := scanTemplate(r.db.Pool().QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return t, nil
}

// Upsert creates or replaces a template, keyed by name.
func (r *TemplateRepository) Upsert(ctx context.Context, t *Template) error {
	query := `
		INSERT INTO notification_templates (
			id, name, category, description,
			email_subject, email_html, email_text,
			sms_template, push_title, push_body,
			in_app_title, in_app_message,
			provider_template_id, variables, active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (name) DO UPDATE SET
			category = $3, description = $4,
			email_subject = $5, email_html = $6, email_text = $7,
			sms_template = $8, push_title = $9, push_body = $10,
			in_app_title = $11, in_app_message = $12,
			provider_template_id = $13, variables = $14, active = $15,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	if t.Variables == nil {
		t.Variables = []string{}
	}

	err := r.db.Pool().QueryRow(ctx, query,
		t.ID, t.Name, t.Category, t.Description,
		t.EmailSubject, t.EmailHTML, t.EmailText,
		t.SMSTemplate, t.PushTitle, t.PushBody,
		t.InAppTitle, t.InAppMessage,
		t.ProviderTemplateID, t.Variables, t.Active,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to upsert template",
			zap.Error(err),
			zap.String("template_name", t.Name),
		)
		return fmt.Errorf("upsert template: %w", err)
	}

	r.logger.Info("template saved",
		zap.String("template_name", t.Name),
		zap.Bool("active", t.Active),
	)
	return nil
}

// List returns all templates, optionally only active ones.
func (r *TemplateRepository) List(ctx context.Context, activeOnly bool) ([]*Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM notification_templates
		WHERE $1 = FALSE OR active = TRUE
		ORDER BY name ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return templates, nil
}
