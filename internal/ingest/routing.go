// Package ingest implements component G: one typed consumer per upstream
// topic, filtering by eventType before deserialization and handing off a
// built DispatchRequest to the shared Dispatcher.
package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"notifyhub/internal/model"
)

// Route is one eventType -> template/category/priority mapping row.
type Route struct {
	EventType    string              `yaml:"eventType"`
	TemplateName string              `yaml:"templateName"`
	Category     model.TemplateCategory `yaml:"category"`
	Priority     model.Priority      `yaml:"priority"`
}

type routingFile struct {
	Routes []Route `yaml:"routes"`
}

// Table is the eventType -> Route lookup used by every ingestor.
type Table map[string]Route

// LoadRoutingFile reads and parses a routing YAML file like
// config/event_routing.yaml. Operators can swap this file without a
// rebuild; ingestors load it once at startup.
func LoadRoutingFile(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: reading routing file: %w", err)
	}
	var rf routingFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("ingest: parsing routing file: %w", err)
	}
	return buildTable(rf.Routes), nil
}

func buildTable(routes []Route) Table {
	t := make(Table, len(routes))
	for _, r := range routes {
		t[r.EventType] = r
	}
	return t
}

// DefaultTable is the built-in fallback used when no routing file is
// configured, mirroring config/event_routing.yaml.
func DefaultTable() Table {
	return buildTable([]Route{
		{EventType: "ORDER_PLACED", TemplateName: "order_placed_alert", Category: model.CategoryTrading, Priority: model.PriorityMedium},
		{EventType: "ORDER_FILLED", TemplateName: "order_execution_alert", Category: model.CategoryTrading, Priority: model.PriorityMedium},
		{EventType: "ORDER_CANCELLED", TemplateName: "order_cancelled_alert", Category: model.CategoryTrading, Priority: model.PriorityLow},
		{EventType: "ORDER_REJECTED", TemplateName: "order_rejected_alert", Category: model.CategoryTrading, Priority: model.PriorityHigh},
		{EventType: "DEPOSIT_COMPLETED", TemplateName: "deposit_completed_alert", Category: model.CategoryAccount, Priority: model.PriorityMedium},
		{EventType: "WITHDRAWAL_COMPLETED", TemplateName: "withdrawal_completed_alert", Category: model.CategoryAccount, Priority: model.PriorityMedium},
		{EventType: "PAYMENT_FAILED", TemplateName: "payment_failed_alert", Category: model.CategoryAccount, Priority: model.PriorityHigh},
		{EventType: "PROFILE_UPDATED", TemplateName: "profile_updated_alert", Category: model.CategoryAccount, Priority: model.PriorityLow},
		{EventType: "EMAIL_VERIFIED", TemplateName: "email_verified_alert", Category: model.CategoryAccount, Priority: model.PriorityLow},
		{EventType: "KYC_SUBMITTED", TemplateName: "kyc_submitted_alert", Category: model.CategoryAccount, Priority: model.PriorityLow},
		{EventType: "KYC_VERIFIED", TemplateName: "kyc_verified_alert", Category: model.CategoryAccount, Priority: model.PriorityMedium},
		{EventType: "SUSPICIOUS_LOGIN", TemplateName: "suspicious_login_alert", Category: model.CategorySecurity, Priority: model.PriorityUrgent},
		{EventType: "PASSWORD_CHANGED", TemplateName: "password_changed_alert", Category: model.CategorySecurity, Priority: model.PriorityHigh},
		{EventType: "TWO_FA_ENABLED", TemplateName: "two_fa_enabled_alert", Category: model.CategorySecurity, Priority: model.PriorityMedium},
		{EventType: "BALANCE_UPDATED", TemplateName: "balance_updated_alert", Category: model.CategoryTrading, Priority: model.PriorityLow},
		{EventType: "POSITION_CLOSED", TemplateName: "position_closed_alert", Category: model.CategoryTrading, Priority: model.PriorityMedium},
		{EventType: "PERFORMANCE_ALERT", TemplateName: "performance_alert", Category: model.CategoryMarketing, Priority: model.PriorityLow},
	})
}
