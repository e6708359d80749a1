package server

import "github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"

// budgetRequest is a partial budget. Omitted fields keep their stored values
// on update and take defaults on create, where a budget starts active.
type budgetRequest struct {
	ID             string                    `json:"id"`
	Name           *string                   `json:"name"`
	MonthlyLimit   *float64                  `json:"monthly_limit"`
	Currency       *string                   `json:"currency"`
	TimeUnit       *model.TimeUnit           `json:"time_unit"`
	AlertThreshold *int                      `json:"alert_threshold"`
	AlertFrequency *string                   `json:"alert_frequency"`
	IsActive       *bool                     `json:"is_active"`
	Services       []string                  `json:"services"`
	Tags           map[string][]string       `json:"tags"`
	Notifications  *model.NotificationConfig `json:"notifications"`
}

func (r budgetRequest) apply(b *model.BudgetRecord) {
	if r.Name != nil {
		b.Name = *r.Name
	}
	if r.MonthlyLimit != nil {
		b.MonthlyLimit = *r.MonthlyLimit
	}
	if r.Currency != nil {
		b.Currency = *r.Currency
	}
	if r.TimeUnit != nil {
		b.TimeUnit = *r.TimeUnit
	}
	if r.AlertThreshold != nil {
		b.AlertThreshold = *r.AlertThreshold
	}
	if r.AlertFrequency != nil {
		b.AlertFrequency = *r.AlertFrequency
	}
	if r.IsActive != nil {
		b.IsActive = *r.IsActive
	}
	if r.Services != nil {
		b.Services = r.Services
	}
	if r.Tags != nil {
		b.Tags = r.Tags
	}
	if r.Notifications != nil {
		b.Notifications = r.Notifications
	}
}
