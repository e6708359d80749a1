package costsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/budgets"
	btypes "github.com/aws/aws-sdk-go-v2/service/budgets/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
)

// BudgetsAPI is the subset of the AWS Budgets client used here.
type BudgetsAPI interface {
	DescribeBudgets(ctx context.Context, params *budgets.DescribeBudgetsInput, optFns ...func(*budgets.Options)) (*budgets.DescribeBudgetsOutput, error)
	DescribeBudgetPerformanceHistory(ctx context.Context, params *budgets.DescribeBudgetPerformanceHistoryInput, optFns ...func(*budgets.Options)) (*budgets.DescribeBudgetPerformanceHistoryOutput, error)
}

// CallerIdentityAPI resolves the account the credentials belong to.
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AWSBudgets implements NativeBudgetSource on AWS Budgets.
type AWSBudgets struct {
	client    BudgetsAPI
	identity  CallerIdentityAPI
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
	accountID string
}

var _ NativeBudgetSource = (*AWSBudgets)(nil)

// NewAWSBudgets creates a native budget source. When accountID is empty it is
// resolved once through identity on first use.
func NewAWSBudgets(client BudgetsAPI, identity CallerIdentityAPI, accountID string, logger *slog.Logger) *AWSBudgets {
	return &AWSBudgets{
		client:    client,
		identity:  identity,
		accountID: accountID,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source used for history windows.
func (a *AWSBudgets) WithClock(now func() time.Time) *AWSBudgets {
	a.now = now
	return a
}

func (a *AWSBudgets) account(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accountID != "" {
		return a.accountID, nil
	}
	if a.identity == nil {
		return "", fmt.Errorf("no account id configured")
	}
	out, err := a.identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	a.accountID = aws.ToString(out.Account)
	if a.accountID == "" {
		return "", fmt.Errorf("caller identity returned no account")
	}
	return a.accountID, nil
}

// ListBudgets returns the account's cost budgets. Usage, RI and Savings Plans
// budgets are skipped since their limits are not currency amounts.
func (a *AWSBudgets) ListBudgets(ctx context.Context) ([]model.NativeBudget, error) {
	accountID, err := a.account(ctx)
	if err != nil {
		return nil, err
	}

	input := &budgets.DescribeBudgetsInput{
		AccountId:  aws.String(accountID),
		MaxResults: aws.Int32(100),
	}

	var result []model.NativeBudget
	for {
		out, err := a.client.DescribeBudgets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe budgets: %w", err)
		}

		for _, b := range out.Budgets {
			if b.BudgetType != btypes.BudgetTypeCost {
				a.logger.Debug("skipping non-cost native budget",
					"budget", aws.ToString(b.BudgetName),
					"type", string(b.BudgetType),
				)
				continue
			}
			result = append(result, toNativeBudget(b))
		}

		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	return result, nil
}

// PerformanceHistory returns budgeted and actual amounts for the last months
// periods of the named budget.
func (a *AWSBudgets) PerformanceHistory(ctx context.Context, name string, months int) (*BudgetHistory, error) {
	if months <= 0 {
		months = 12
	}
	accountID, err := a.account(ctx)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	start := time.Date(now.Year(), now.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC)

	input := &budgets.DescribeBudgetPerformanceHistoryInput{
		AccountId:  aws.String(accountID),
		BudgetName: aws.String(name),
		TimePeriod: &btypes.TimePeriod{Start: aws.Time(start), End: aws.Time(now)},
	}

	history := &BudgetHistory{BudgetName: name}
	for {
		out, err := a.client.DescribeBudgetPerformanceHistory(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe budget performance history %s: %w", name, err)
		}

		if h := out.BudgetPerformanceHistory; h != nil {
			history.BudgetType = string(h.BudgetType)
			history.TimeUnit = string(h.TimeUnit)
			for _, item := range h.BudgetedAndActualAmountsList {
				history.Periods = append(history.Periods, toHistoryPeriod(item))
			}
		}

		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	if len(history.Periods) > 0 {
		last := history.Periods[len(history.Periods)-1]
		history.Limit = last.Budgeted
		history.Unit = last.Unit
	}
	history.Summary = Summarize(history.Periods)
	return history, nil
}

func toNativeBudget(b btypes.Budget) model.NativeBudget {
	n := model.NativeBudget{
		Name:        aws.ToString(b.BudgetName),
		Currency:    model.DefaultCurrency,
		TimeUnit:    toTimeUnit(b.TimeUnit),
		BudgetType:  string(b.BudgetType),
		CostFilters: b.CostFilters,
	}
	if b.BudgetLimit != nil {
		n.Limit = parseAmount(b.BudgetLimit.Amount)
		if u := aws.ToString(b.BudgetLimit.Unit); u != "" {
			n.Currency = u
		}
	}
	if cs := b.CalculatedSpend; cs != nil {
		if cs.ActualSpend != nil {
			n.ActualSpend = parseAmount(cs.ActualSpend.Amount)
		}
		if cs.ForecastedSpend != nil {
			n.ForecastedSpend = parseAmount(cs.ForecastedSpend.Amount)
		}
	}
	return n
}

func toHistoryPeriod(item btypes.BudgetedAndActualAmounts) HistoryPeriod {
	p := HistoryPeriod{Unit: model.DefaultCurrency}
	if tp := item.TimePeriod; tp != nil {
		p.Start = aws.ToTime(tp.Start)
		p.End = aws.ToTime(tp.End)
	}
	if item.BudgetedAmount != nil {
		p.Budgeted = parseAmount(item.BudgetedAmount.Amount)
		if u := aws.ToString(item.BudgetedAmount.Unit); u != "" {
			p.Unit = u
		}
	}
	if item.ActualAmount != nil {
		p.Actual = parseAmount(item.ActualAmount.Amount)
	}
	if p.Budgeted > 0 {
		p.Utilization = model.RoundCents(p.Actual / p.Budgeted * 100)
	}
	return p
}

// toTimeUnit maps provider time units onto the supported set. Daily budgets
// are reported as monthly since only the provider-reported spend is used.
func toTimeUnit(u btypes.TimeUnit) model.TimeUnit {
	switch u {
	case btypes.TimeUnitQuarterly:
		return model.TimeUnitQuarterly
	case btypes.TimeUnitAnnually:
		return model.TimeUnitAnnually
	default:
		return model.TimeUnitMonthly
	}
}

func parseAmount(s *string) float64 {
	if s == nil {
		return 0
	}
	v, err := model.SumAmounts(*s)
	if err != nil {
		return 0
	}
	return v
}
