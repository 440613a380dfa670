package templatestore

import (
	"context"
	"database/sql"

	"notifyhub/internal/model"
)

// DefaultTemplate is a minimal seed row for an eventType routed to a
// templateName that has no operator-authored template yet. It exists so a
// freshly provisioned notifyhub instance can dispatch notifications before
// anyone has visited the template admin screen.
type DefaultTemplate struct {
	TemplateName    string
	DisplayName     string
	Channel         model.Channel
	Category        model.TemplateCategory
	DefaultPriority model.Priority
	SubjectTemplate string
	ContentTemplate string
}

// SeedDefaults inserts every default template that does not already exist.
// It is safe to call on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB, defaults []DefaultTemplate) error {
	for _, d := range defaults {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_templates WHERE template_name = ?`, d.TemplateName).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO notification_templates
			(template_name, display_name, description, channel, category, subject_template,
			 content_template, html_template, active, version, default_priority, rate_limit_per_hour,
			 created_by, updated_by)
			VALUES (?, ?, '', ?, ?, ?, ?, '', 1, 1, ?, 0, 'system', 'system')`,
			d.TemplateName, d.DisplayName, d.Channel, d.Category, d.SubjectTemplate,
			d.ContentTemplate, d.DefaultPriority); err != nil {
			return err
		}
	}
	return nil
}
