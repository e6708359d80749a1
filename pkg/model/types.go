package model

import "time"

// TimeUnit defines the window a budget limit applies to.
type TimeUnit string

const (
	TimeUnitMonthly   TimeUnit = "MONTHLY"
	TimeUnitQuarterly TimeUnit = "QUARTERLY"
	TimeUnitAnnually  TimeUnit = "ANNUALLY"
)

// Valid reports whether u is a supported time unit.
func (u TimeUnit) Valid() bool {
	switch u {
	case TimeUnitMonthly, TimeUnitQuarterly, TimeUnitAnnually:
		return true
	}
	return false
}

// BudgetType identifies where a budget was defined.
type BudgetType string

const (
	BudgetTypeCustom BudgetType = "CUSTOM"
	BudgetTypeNative BudgetType = "AWS_NATIVE"
)

// BudgetStatus is the utilization state of a budget.
type BudgetStatus string

const (
	StatusOnTrack  BudgetStatus = "ON_TRACK"
	StatusWarning  BudgetStatus = "WARNING"
	StatusExceeded BudgetStatus = "EXCEEDED"
)

// Default values applied during normalization.
const (
	DefaultCurrency       = "USD"
	DefaultAlertThreshold = 80
	DefaultBudgetName     = "Unnamed Budget"
	DefaultAlertFrequency = "daily"
)

// NotificationConfig selects the channels an alert is delivered through.
type NotificationConfig struct {
	Email        bool   `json:"email"`
	EmailAddress string `json:"email_address,omitempty"`
	PubSub       bool   `json:"pubsub"`
	Chat         bool   `json:"chat"`
	WebhookURL   string `json:"webhook_url,omitempty"`
}

// DefaultNotifications returns the configuration used when a budget has none.
func DefaultNotifications() NotificationConfig {
	return NotificationConfig{Email: true}
}

// BudgetRecord is a user-defined budget as persisted by the store.
type BudgetRecord struct {
	ID                    string              `json:"id" db:"id"`
	UserID                string              `json:"user_id" db:"user_id"`
	Name                  string              `json:"name" db:"name"`
	MonthlyLimit          float64             `json:"monthly_limit" db:"monthly_limit"`
	Currency              string              `json:"currency" db:"currency"`
	TimeUnit              TimeUnit            `json:"time_unit" db:"time_unit"`
	AlertThreshold        int                 `json:"alert_threshold" db:"alert_threshold"`
	AlertFrequency        string              `json:"alert_frequency" db:"alert_frequency"`
	IsActive              bool                `json:"is_active" db:"is_active"`
	Services              []string            `json:"services" db:"services"`
	Tags                  map[string][]string `json:"tags" db:"tags"`
	Notifications         *NotificationConfig `json:"notifications,omitempty" db:"notifications"`
	TotalSpentThisMonth   float64             `json:"total_spent_this_month" db:"total_spent_this_month"`
	ProjectedMonthlySpend float64             `json:"projected_monthly_spend" db:"projected_monthly_spend"`
	LastAlertSent         *time.Time          `json:"last_alert_sent,omitempty" db:"last_alert_sent"`
	LastAlertType         AlertType           `json:"last_alert_type,omitempty" db:"last_alert_type"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`
}

// NativeBudget is a budget defined in the cloud provider's own budgeting service.
type NativeBudget struct {
	Name            string              `json:"name"`
	Limit           float64             `json:"limit"`
	Currency        string              `json:"currency"`
	TimeUnit        TimeUnit            `json:"time_unit"`
	BudgetType      string              `json:"budget_type"`
	ActualSpend     float64             `json:"actual_spend"`
	ForecastedSpend float64             `json:"forecasted_spend"`
	CostFilters     map[string][]string `json:"cost_filters,omitempty"`
}

// SourceKind tags which variant a BudgetSource holds.
type SourceKind int

const (
	SourceCustom SourceKind = iota
	SourceNative
)

// BudgetSource is a budget as discovered at ingestion, before normalization.
// Exactly one of Custom or Native is set, matching Kind.
type BudgetSource struct {
	Kind   SourceKind
	Custom *BudgetRecord
	Native *NativeBudget
}

// CustomSource wraps a user-defined budget record.
func CustomSource(r BudgetRecord) BudgetSource {
	return BudgetSource{Kind: SourceCustom, Custom: &r}
}

// NativeSource wraps a provider-native budget.
func NativeSource(n NativeBudget) BudgetSource {
	return BudgetSource{Kind: SourceNative, Native: &n}
}

// NormalizedBudget is the canonical budget shape consumed by alert evaluation.
type NormalizedBudget struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Type           BudgetType          `json:"type"`
	Limit          float64             `json:"limit"`
	Currency       string              `json:"currency"`
	TimeUnit       TimeUnit            `json:"time_unit"`
	Services       []string            `json:"services"`
	Tags           map[string][]string `json:"tags"`
	AlertThreshold int                 `json:"alert_threshold"`
	Notifications  NotificationConfig  `json:"notifications"`
	OwnerUserID    string              `json:"owner_user_id"`
	Utilization    *Utilization        `json:"utilization,omitempty"`

	// ReportedSpend is set for native budgets, whose spend comes from the provider.
	ReportedSpend *float64 `json:"-"`
}

// Utilization is the derived spend state of a budget for its current period.
type Utilization struct {
	CurrentSpend    float64      `json:"current_spend"`
	Limit           float64      `json:"limit"`
	Utilization     float64      `json:"utilization"`
	RemainingBudget float64      `json:"remaining_budget"`
	ProjectedSpend  float64      `json:"projected_spend"`
	Status          BudgetStatus `json:"status"`
}

// User is the account that owns budgets and receives email alerts.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PeriodStart returns the first instant of the current period for unit.
// Unknown units are treated as monthly.
func PeriodStart(unit TimeUnit, now time.Time) time.Time {
	now = now.UTC()
	switch unit {
	case TimeUnitQuarterly:
		quarter := (int(now.Month()) - 1) / 3
		return time.Date(now.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, time.UTC)
	case TimeUnitAnnually:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// PeriodBounds returns the start and exclusive end of the current period for unit.
func PeriodBounds(unit TimeUnit, now time.Time) (start, end time.Time) {
	start = PeriodStart(unit, now)
	switch unit {
	case TimeUnitQuarterly:
		end = start.AddDate(0, 3, 0)
	case TimeUnitAnnually:
		end = start.AddDate(1, 0, 0)
	default:
		end = start.AddDate(0, 1, 0)
	}
	return start, end
}
