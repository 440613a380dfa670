// Package templatestore implements component B: the versioned catalog of
// notification templates keyed by templateName, with a single active
// version per name and {{var}} substitution rendering.
package templatestore

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"notifyhub/internal/apperr"
	"notifyhub/internal/cache"
	"notifyhub/internal/logging"
	"notifyhub/internal/model"
)

// Store is the component B contract.
type Store struct {
	db    *sql.DB
	cache *cache.Layered
	ttl   time.Duration
}

// New builds a Store. cacheLayer may be nil to disable caching (tests).
func New(db *sql.DB, cacheLayer *cache.Layered) *Store {
	return &Store{db: db, cache: cacheLayer, ttl: 10 * time.Minute}
}

func cacheKey(templateName string) string { return "template:active:" + templateName }

const templateColumns = `id, template_name, display_name, description, channel, category,
	subject_template, content_template, html_template, active, version,
	default_priority, rate_limit_per_hour, created_by, updated_by, created_at, updated_at`

func scanTemplate(row interface{ Scan(...interface{}) error }) (model.Template, error) {
	var t model.Template
	var html sql.NullString
	err := row.Scan(&t.ID, &t.TemplateName, &t.DisplayName, &t.Description, &t.Channel, &t.Category,
		&t.SubjectTemplate, &t.ContentTemplate, &html, &t.Active, &t.Version,
		&t.DefaultPriority, &t.RateLimitPerHour, &t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	t.HTMLTemplate = html.String
	return t, err
}

// GetByName returns the single active version of templateName.
func (s *Store) GetByName(ctx context.Context, templateName string) (model.Template, error) {
	if s.cache != nil {
		var t model.Template
		if s.cache.Get(ctx, cacheKey(templateName), &t) {
			return t, nil
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM notification_templates WHERE template_name = ? AND active = 1`, templateColumns)
	row := s.db.QueryRowContext(ctx, query, templateName)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return model.Template{}, apperr.New(apperr.KindTemplateNotFound, "no active template named "+templateName)
	}
	if err != nil {
		return model.Template{}, apperr.Wrap(apperr.KindInternal, "querying template", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, cacheKey(templateName), t, s.ttl)
	}
	return t, nil
}

// GetLatestVersion returns the highest-version row for templateName,
// active or not, used by the template admin UI.
func (s *Store) GetLatestVersion(ctx context.Context, templateName string) (model.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_templates WHERE template_name = ? ORDER BY version DESC LIMIT 1`, templateColumns)
	row := s.db.QueryRowContext(ctx, query, templateName)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return model.Template{}, apperr.New(apperr.KindNotFound, "no template named "+templateName)
	}
	if err != nil {
		return model.Template{}, apperr.Wrap(apperr.KindInternal, "querying template", err)
	}
	return t, nil
}

// ListByCategory returns every active template in a category.
func (s *Store) ListByCategory(ctx context.Context, category model.TemplateCategory) ([]model.Template, error) {
	return s.listWhere(ctx, `WHERE category = ? AND active = 1 ORDER BY template_name`, category)
}

// ListByChannel returns every active template for a channel.
func (s *Store) ListByChannel(ctx context.Context, channel model.Channel) ([]model.Template, error) {
	return s.listWhere(ctx, `WHERE channel = ? AND active = 1 ORDER BY template_name`, channel)
}

// Search does a case-insensitive substring match over template_name and
// display_name, for the template admin endpoint.
func (s *Store) Search(ctx context.Context, term string) ([]model.Template, error) {
	like := "%" + term + "%"
	query := fmt.Sprintf(`SELECT %s FROM notification_templates
		WHERE active = 1 AND (template_name LIKE ? OR display_name LIKE ?) ORDER BY template_name`, templateColumns)
	rows, err := s.db.QueryContext(ctx, query, like, like)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "searching templates", err)
	}
	defer rows.Close()
	return collectTemplates(rows)
}

func (s *Store) listWhere(ctx context.Context, clause string, arg interface{}) ([]model.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_templates %s`, templateColumns, clause)
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "listing templates", err)
	}
	defer rows.Close()
	return collectTemplates(rows)
}

func collectTemplates(rows *sql.Rows) ([]model.Template, error) {
	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scanning template row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create inserts the first version (version=1, active=true) of a new
// template. Fails with KindAlreadyExists if templateName already has any
// version on record.
func (s *Store) Create(ctx context.Context, t model.Template) (model.Template, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_templates WHERE template_name = ?`, t.TemplateName).Scan(&count); err != nil {
		return model.Template{}, apperr.Wrap(apperr.KindInternal, "checking template existence", err)
	}
	if count > 0 {
		return model.Template{}, apperr.New(apperr.KindAlreadyExists, "template "+t.TemplateName+" already exists")
	}

	t.Version = 1
	t.Active = true
	res, err := s.db.ExecContext(ctx, `INSERT INTO notification_templates
		(template_name, display_name, description, channel, category, subject_template,
		 content_template, html_template, active, version, default_priority, rate_limit_per_hour,
		 created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TemplateName, t.DisplayName, t.Description, t.Channel, t.Category, t.SubjectTemplate,
		t.ContentTemplate, t.HTMLTemplate, t.Active, t.Version, t.DefaultPriority, t.RateLimitPerHour,
		t.CreatedBy, t.CreatedBy)
	if err != nil {
		return model.Template{}, apperr.Wrap(apperr.KindInternal, "inserting template", err)
	}
	id, _ := res.LastInsertId()
	t.ID = id
	return t, nil
}

// CreateNewVersion atomically deactivates the current active version and
// inserts version+1 as the new active one.
func (s *Store) CreateNewVersion(ctx context.Context, templateName string, mutate func(*model.Template)) (model.Template, error) {
	latest, err := s.GetLatestVersion(ctx, templateName)
	if err != nil {
		return model.Template{}, err
	}

	next := latest
	next.Version = latest.Version + 1
	next.Active = true
	mutate(&next)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Template{}, apperr.Wrap(apperr.KindInternal, "starting transaction", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE notification_templates SET active = 0 WHERE template_name = ? AND active = 1`, templateName); err != nil {
		tx.Rollback()
		return model.Template{}, apperr.Wrap(apperr.KindInternal, "deactivating previous version", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO notification_templates
		(template_name, display_name, description, channel, category, subject_template,
		 content_template, html_template, active, version, default_priority, rate_limit_per_hour,
		 created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		next.TemplateName, next.DisplayName, next.Description, next.Channel, next.Category,
		next.SubjectTemplate, next.ContentTemplate, next.HTMLTemplate, next.Active, next.Version,
		next.DefaultPriority, next.RateLimitPerHour, next.CreatedBy, next.UpdatedBy)
	if err != nil {
		tx.Rollback()
		return model.Template{}, apperr.Wrap(apperr.KindInternal, "inserting new template version", err)
	}
	id, _ := res.LastInsertId()
	next.ID = id

	if err := tx.Commit(); err != nil {
		return model.Template{}, apperr.Wrap(apperr.KindInternal, "committing new version", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, cacheKey(templateName))
	}
	return next, nil
}

// SetActive flips which version of templateName is active.
func (s *Store) SetActive(ctx context.Context, templateName string, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "starting transaction", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notification_templates SET active = 0 WHERE template_name = ?`, templateName); err != nil {
		tx.Rollback()
		return apperr.Wrap(apperr.KindInternal, "deactivating versions", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE notification_templates SET active = 1 WHERE template_name = ? AND version = ?`, templateName, version)
	if err != nil {
		tx.Rollback()
		return apperr.Wrap(apperr.KindInternal, "activating version", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("no version %d of %s", version, templateName))
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "committing activation", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, cacheKey(templateName))
	}
	return nil
}

// SoftDelete deactivates every version of templateName without removing
// history — existing DispatchRequests already in flight keep referencing
// the templateName by value, not by foreign key.
func (s *Store) SoftDelete(ctx context.Context, templateName string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notification_templates SET active = 0 WHERE template_name = ?`, templateName); err != nil {
		return apperr.Wrap(apperr.KindInternal, "soft deleting template", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, cacheKey(templateName))
	}
	return nil
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render substitutes {{var}} placeholders in text with vars. A missing
// variable is substituted with an empty string and logged at DEBUG, per
// spec §4.B — a missing template variable must never fail the send.
func Render(text string, vars map[string]interface{}) string {
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(varPattern.FindStringSubmatch(match)[1])
		v, ok := vars[name]
		if !ok {
			logging.Debug("templatestore: missing variable %q, substituting empty string", name)
			return ""
		}
		return fmt.Sprint(v)
	})
}

// RenderHTML substitutes {{var}} placeholders using html/template so
// variable values are escaped for HTML output, used when a template carries
// an HTMLTemplate body.
func RenderHTML(name, htmlBody string, vars map[string]interface{}) (string, error) {
	tmpl, err := parseHTML(name, htmlBody)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "parsing html template", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "executing html template", err)
	}
	return buf.String(), nil
}
