package model

import "time"

// AlertType distinguishes a threshold crossing from an exceeded limit.
type AlertType string

const (
	AlertThresholdReached AlertType = "THRESHOLD_REACHED"
	AlertBudgetExceeded   AlertType = "BUDGET_EXCEEDED"
)

// Severity ranks how far utilization is past the alert threshold.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Priority returns the processing order of a severity, 1 being most urgent.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 4
	default:
		return 5
	}
}

// Channel names a notification delivery path.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelPubSub  Channel = "pubsub"
	ChannelChat    Channel = "chat"
	ChannelConsole Channel = "console"
)

// Alert is a single evaluation decision for one budget. It is never persisted;
// only the time it was sent is recorded against the budget.
type Alert struct {
	BudgetID           string              `json:"budget_id"`
	BudgetName         string              `json:"budget_name"`
	BudgetType         BudgetType          `json:"budget_type"`
	AlertType          AlertType           `json:"alert_type"`
	Threshold          int                 `json:"threshold"`
	CurrentUtilization float64             `json:"current_utilization"`
	CurrentSpend       float64             `json:"current_spend"`
	BudgetLimit        float64             `json:"budget_limit"`
	RemainingBudget    float64             `json:"remaining_budget"`
	Currency           string              `json:"currency"`
	Severity           Severity            `json:"severity"`
	Services           []string            `json:"services"`
	Tags               map[string][]string `json:"tags"`
	UserID             string              `json:"user_id"`
	UserEmail          string              `json:"user_email,omitempty"`
	Notifications      NotificationConfig  `json:"-"`
	Timestamp          time.Time           `json:"timestamp"`
}

// NotificationResult is the outcome of delivering one alert through one channel.
type NotificationResult struct {
	Channel   Channel `json:"channel"`
	Attempted bool    `json:"attempted"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
}

// DeliveryStatus is the per-alert outcome recorded in a run summary.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// AlertDelivery records how one alert was dispatched during a run.
type AlertDelivery struct {
	BudgetID    string                         `json:"budget_id"`
	BudgetName  string                         `json:"budget_name"`
	AlertType   AlertType                      `json:"alert_type"`
	Severity    Severity                       `json:"severity"`
	Utilization float64                        `json:"utilization"`
	Status      DeliveryStatus                 `json:"status"`
	Error       string                         `json:"error,omitempty"`
	Channels    map[Channel]NotificationResult `json:"channels,omitempty"`
}

// BudgetReport is a per-budget row of a run summary.
type BudgetReport struct {
	BudgetID           string       `json:"budget_id"`
	BudgetName         string       `json:"budget_name"`
	CurrentUtilization float64      `json:"current_utilization"`
	CurrentSpend       float64      `json:"current_spend"`
	BudgetLimit        float64      `json:"budget_limit"`
	Threshold          int          `json:"threshold"`
	Status             BudgetStatus `json:"status"`
	AlertTriggered     bool         `json:"alert_triggered"`
}

// RunSummary describes one processor run.
type RunSummary struct {
	RunID               string          `json:"run_id"`
	UserID              string          `json:"user_id,omitempty"`
	BudgetsProcessed    int             `json:"budgets_processed"`
	AlertsTriggered     int             `json:"alerts_triggered"`
	NotificationsSent   int             `json:"notifications_sent"`
	NotificationsFailed int             `json:"notifications_failed"`
	ProcessingTimeMs    int64           `json:"processing_time_ms"`
	TestMode            bool            `json:"test_mode"`
	ForceAlert          bool            `json:"force_alert"`
	Budgets             []BudgetReport  `json:"budgets"`
	Alerts              []Alert         `json:"alerts"`
	Notifications       []AlertDelivery `json:"notifications,omitempty"`
}
