package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/costsource"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// groupedCostExplorer answers GetCostAndUsage with one page of results.
type groupedCostExplorer struct {
	results []cetypes.ResultByTime
	err     error
	inputs  []costexplorer.GetCostAndUsageInput
}

func (f *groupedCostExplorer) GetCostAndUsage(_ context.Context, in *costexplorer.GetCostAndUsageInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	f.inputs = append(f.inputs, *in)
	if f.err != nil {
		return nil, f.err
	}
	return &costexplorer.GetCostAndUsageOutput{ResultsByTime: f.results}, nil
}

func monthResult(start, end string, costs map[string]string) cetypes.ResultByTime {
	r := cetypes.ResultByTime{
		TimePeriod: &cetypes.DateInterval{Start: aws.String(start), End: aws.String(end)},
	}
	for svc, amount := range costs {
		r.Groups = append(r.Groups, cetypes.Group{
			Keys: []string{svc},
			Metrics: map[string]cetypes.MetricValue{
				costsource.CostMetric: {Amount: aws.String(amount), Unit: aws.String("USD")},
			},
		})
	}
	return r
}

func threeMonths() *groupedCostExplorer {
	return &groupedCostExplorer{results: []cetypes.ResultByTime{
		monthResult("2026-01-01", "2026-02-01", map[string]string{"Amazon EC2": "100", "Amazon S3": "20"}),
		monthResult("2026-02-01", "2026-03-01", map[string]string{"Amazon EC2": "80", "Amazon S3": "10"}),
		monthResult("2026-03-01", "2026-03-15", map[string]string{"Amazon EC2": "40", "AWS Lambda": "10"}),
	}}
}

func newTestReporter(ce costsource.CostExplorerAPI, native costsource.NativeBudgetSource, fallback float64) *tracker.CostReporter {
	costs := costsource.NewCostExplorer(ce, testLogger())
	return tracker.NewCostReporter(costs, native, tracker.ReportConfig{FallbackBudget: fallback}, testLogger()).
		WithClock(func() time.Time { return testNow })
}

func TestCostReport_ServiceBreakdown(t *testing.T) {
	ce := threeMonths()

	report, err := newTestReporter(ce, nil, 100).CostReport(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, ce.inputs, 1)
	in := ce.inputs[0]
	assert.Equal(t, "2026-01-01", aws.ToString(in.TimePeriod.Start))
	assert.Equal(t, "2026-03-15", aws.ToString(in.TimePeriod.End))
	assert.Equal(t, cetypes.GranularityMonthly, in.Granularity)
	require.Len(t, in.GroupBy, 1)
	assert.Equal(t, "SERVICE", aws.ToString(in.GroupBy[0].Key))

	assert.Equal(t, 3, report.Months)
	assert.Equal(t, "USD", report.Currency)
	assert.InDelta(t, 260.0, report.TotalCost, 0.001)
	assert.InDelta(t, 50.0, report.CurrentMonthCost, 0.001)
	assert.InDelta(t, 3.56, report.DailyAverage, 0.001)
	assert.InDelta(t, 86.67, report.AverageMonthlyCost, 0.001)

	require.Len(t, report.Services, 3)
	assert.Equal(t, tracker.ServiceCost{Service: "Amazon EC2", Cost: 220, Percentage: 84.62}, report.Services[0])
	assert.Equal(t, tracker.ServiceCost{Service: "Amazon S3", Cost: 30, Percentage: 11.54}, report.Services[1])
	assert.Equal(t, tracker.ServiceCost{Service: "AWS Lambda", Cost: 10, Percentage: 3.85}, report.Services[2])

	assert.Equal(t, []tracker.ServiceCost{
		{Service: "Amazon EC2", Cost: 40},
		{Service: "AWS Lambda", Cost: 10},
	}, report.CurrentMonth)
	assert.Equal(t, 2, report.ServiceCount)

	require.NotNil(t, report.Budget)
	assert.Equal(t, tracker.ReportBudgetConfig, report.Budget.Source)
	assert.InDelta(t, 50.0, report.Budget.Utilization.Utilization, 0.001)
	assert.InDelta(t, 115.53, report.Budget.Utilization.ProjectedSpend, 0.01)
	assert.Equal(t, model.StatusOnTrack, report.Budget.Utilization.Status)
	assert.False(t, report.Budget.IsOverBudget)
	assert.Equal(t, 17, report.Budget.DaysRemaining)
}

func TestCostReport_PrefersNativeMonthlyBudget(t *testing.T) {
	native := &fakeNative{budgets: []model.NativeBudget{
		{Name: "aws-quarterly", Limit: 999, TimeUnit: model.TimeUnitQuarterly, BudgetType: "COST"},
		{Name: "aws-monthly", Limit: 40, TimeUnit: model.TimeUnitMonthly, BudgetType: "COST"},
	}}

	report, err := newTestReporter(threeMonths(), native, 100).CostReport(context.Background(), 3)
	require.NoError(t, err)

	require.NotNil(t, report.Budget)
	assert.Equal(t, tracker.ReportBudgetAWS, report.Budget.Source)
	assert.Equal(t, "aws-monthly", report.Budget.Name)
	assert.InDelta(t, 125.0, report.Budget.Utilization.Utilization, 0.001)
	assert.Equal(t, model.StatusExceeded, report.Budget.Utilization.Status)
	assert.True(t, report.Budget.IsOverBudget)
}

func TestCostReport_NativeFailureFallsBackToConfig(t *testing.T) {
	native := &fakeNative{err: errors.New("access denied")}

	report, err := newTestReporter(threeMonths(), native, 100).CostReport(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, report.Budget)
	assert.Equal(t, tracker.ReportBudgetConfig, report.Budget.Source)
}

func TestCostReport_NoBudget(t *testing.T) {
	report, err := newTestReporter(threeMonths(), nil, 0).CostReport(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, report.Budget)
}

func TestCostReport_DefaultWindow(t *testing.T) {
	ce := &groupedCostExplorer{}

	report, err := newTestReporter(ce, nil, 0).CostReport(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, tracker.DefaultReportMonths, report.Months)
	assert.Equal(t, "2025-10-01", aws.ToString(ce.inputs[0].TimePeriod.Start))
	assert.Zero(t, report.TotalCost)
	assert.Zero(t, report.AverageMonthlyCost)
	assert.Empty(t, report.Services)
}

func TestCostReport_InvalidMonths(t *testing.T) {
	ce := &groupedCostExplorer{}

	_, err := newTestReporter(ce, nil, 0).CostReport(context.Background(), 13)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = newTestReporter(ce, nil, 0).CostReport(context.Background(), -1)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Empty(t, ce.inputs)
}

func TestCostReport_QueryError(t *testing.T) {
	ce := &groupedCostExplorer{err: errors.New("throttling exception")}

	_, err := newTestReporter(ce, nil, 0).CostReport(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttling exception")
}
