package model

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a budget record before it is stored.
func (b *BudgetRecord) Validate() error {
	if b.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !(b.MonthlyLimit > 0) {
		return fmt.Errorf("%w: budget limit must be a positive number", ErrInvalidInput)
	}
	if b.AlertThreshold != 0 && (b.AlertThreshold < 1 || b.AlertThreshold > 100) {
		return fmt.Errorf("%w: alert threshold must be between 1 and 100 percent", ErrInvalidInput)
	}
	if b.TimeUnit != "" && !b.TimeUnit.Valid() {
		return fmt.Errorf("%w: unknown time unit %q", ErrInvalidInput, b.TimeUnit)
	}
	if n := b.Notifications; n != nil && n.Chat {
		if n.WebhookURL == "" {
			return fmt.Errorf("%w: chat notifications require a webhook url", ErrInvalidInput)
		}
		u, err := url.Parse(n.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: invalid webhook url %q", ErrInvalidInput, n.WebhookURL)
		}
	}
	if n := b.Notifications; n != nil && n.EmailAddress != "" && !strings.Contains(n.EmailAddress, "@") {
		return fmt.Errorf("%w: invalid email address %q", ErrInvalidInput, n.EmailAddress)
	}
	return nil
}

// ApplyDefaults fills unset optional fields the way the store expects them.
func (b *BudgetRecord) ApplyDefaults() {
	if b.Name == "" {
		b.Name = "Default Budget"
	}
	if b.Currency == "" {
		b.Currency = DefaultCurrency
	}
	if b.AlertThreshold == 0 {
		b.AlertThreshold = DefaultAlertThreshold
	}
	if b.AlertFrequency == "" {
		b.AlertFrequency = DefaultAlertFrequency
	}
	if b.TimeUnit == "" {
		b.TimeUnit = TimeUnitMonthly
	}
	if b.Services == nil {
		b.Services = []string{}
	}
	if b.Tags == nil {
		b.Tags = map[string][]string{}
	}
	if b.Notifications == nil {
		n := DefaultNotifications()
		b.Notifications = &n
	}
}
