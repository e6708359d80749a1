package alerts

import (
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
)

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "danger"
	case model.SeverityHigh, model.SeverityMedium:
		return "warning"
	default:
		return "good"
	}
}

// chatPayload renders an alert as a Slack-compatible incoming webhook message.
func chatPayload(alert model.Alert) slackPayload {
	services := "All services"
	if len(alert.Services) > 0 {
		services = strings.Join(alert.Services, ", ")
	}

	return slackPayload{
		Text: fmt.Sprintf("Budget Alert: %s", alert.BudgetName),
		Attachments: []slackAttachment{
			{
				Color: severityColor(alert.Severity),
				Title: fmt.Sprintf("%s (%s)", alertHeadline(alert.AlertType), alert.Severity),
				Fields: []slackField{
					{Title: "Budget", Value: alert.BudgetName, Short: true},
					{Title: "Utilization", Value: fmt.Sprintf("%.2f%%", alert.CurrentUtilization), Short: true},
					{Title: "Current Spend", Value: formatMoney(alert.CurrentSpend, alert.Currency), Short: true},
					{Title: "Budget Limit", Value: formatMoney(alert.BudgetLimit, alert.Currency), Short: true},
					{Title: "Remaining", Value: formatMoney(alert.RemainingBudget, alert.Currency), Short: true},
					{Title: "Threshold", Value: fmt.Sprintf("%d%%", alert.Threshold), Short: true},
					{Title: "Services", Value: services, Short: false},
				},
				Footer: "Cloud Cost Guardian",
				Ts:     alert.Timestamp.Unix(),
			},
		},
	}
}

func alertHeadline(t model.AlertType) string {
	if t == model.AlertBudgetExceeded {
		return "Budget exceeded"
	}
	return "Budget threshold reached"
}

func formatMoney(v float64, currency string) string {
	if currency == "" || currency == model.DefaultCurrency {
		return fmt.Sprintf("$%.2f", v)
	}
	return fmt.Sprintf("%.2f %s", v, currency)
}
