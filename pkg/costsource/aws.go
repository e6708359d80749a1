package costsource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
)

// CostMetric is the Cost Explorer metric budgets are measured against.
const CostMetric = "BlendedCost"

const ceDateLayout = "2006-01-02"

// CostExplorerAPI is the subset of the Cost Explorer client used here.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// CostExplorer implements CostSource on AWS Cost Explorer.
type CostExplorer struct {
	client CostExplorerAPI
	logger *slog.Logger
}

var _ CostSource = (*CostExplorer)(nil)

// NewCostExplorer creates a cost source backed by the given client.
func NewCostExplorer(client CostExplorerAPI, logger *slog.Logger) *CostExplorer {
	return &CostExplorer{client: client, logger: logger}
}

// GetSpend sums spend over [q.Start, q.End). Cost Explorer dates are whole
// days, so both bounds are truncated to UTC dates. A range that is empty
// after truncation yields zero spend without calling the API.
func (c *CostExplorer) GetSpend(ctx context.Context, q SpendQuery) (*CostSeries, error) {
	start := q.Start.UTC().Format(ceDateLayout)
	end := q.End.UTC().Format(ceDateLayout)
	if end <= start {
		return &CostSeries{Unit: model.DefaultCurrency}, nil
	}

	granularity := cetypes.GranularityMonthly
	if q.Granularity == GranularityDaily {
		granularity = cetypes.GranularityDaily
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod:  &cetypes.DateInterval{Start: aws.String(start), End: aws.String(end)},
		Granularity: granularity,
		Metrics:     []string{CostMetric},
		Filter:      toExpression(q.Filter),
	}
	if q.GroupByService {
		input.GroupBy = []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeDimension,
			Key:  aws.String(DimensionService),
		}}
	}

	series := &CostSeries{Unit: model.DefaultCurrency}
	var raw []string
	for {
		out, err := c.client.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("get cost and usage: %w", err)
		}

		for _, r := range out.ResultsByTime {
			bucket, amounts, err := toBucket(r, q.GroupByService)
			if err != nil {
				return nil, err
			}
			if bucket.Unit != "" {
				series.Unit = bucket.Unit
			}
			series.Buckets = append(series.Buckets, bucket)
			raw = append(raw, amounts...)
		}

		if out.NextPageToken == nil || *out.NextPageToken == "" {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	total, err := model.SumAmounts(raw...)
	if err != nil {
		return nil, fmt.Errorf("sum cost buckets: %w", err)
	}
	series.Total = total

	c.logger.Debug("cost explorer query",
		"start", start,
		"end", end,
		"buckets", len(series.Buckets),
		"total", series.Total,
	)
	return series, nil
}

func toBucket(r cetypes.ResultByTime, grouped bool) (CostBucket, []string, error) {
	var b CostBucket
	if r.TimePeriod != nil {
		b.Start, _ = time.Parse(ceDateLayout, aws.ToString(r.TimePeriod.Start))
		b.End, _ = time.Parse(ceDateLayout, aws.ToString(r.TimePeriod.End))
	}
	b.Estimated = r.Estimated

	var amounts []string
	if grouped {
		b.ByService = make(map[string]float64, len(r.Groups))
		for _, g := range r.Groups {
			m, ok := g.Metrics[CostMetric]
			if !ok {
				continue
			}
			amount := aws.ToString(m.Amount)
			v, err := model.SumAmounts(amount)
			if err != nil {
				return b, nil, fmt.Errorf("parse group amount: %w", err)
			}
			if len(g.Keys) > 0 {
				b.ByService[g.Keys[0]] += v
			}
			if u := aws.ToString(m.Unit); u != "" {
				b.Unit = u
			}
			amounts = append(amounts, amount)
		}
	} else if m, ok := r.Total[CostMetric]; ok {
		amounts = append(amounts, aws.ToString(m.Amount))
		b.Unit = aws.ToString(m.Unit)
	}

	v, err := model.SumAmounts(amounts...)
	if err != nil {
		return b, nil, fmt.Errorf("parse bucket amount: %w", err)
	}
	b.Amount = model.RoundCents(v)
	return b, amounts, nil
}

func toExpression(f *Filter) *cetypes.Expression {
	if f == nil {
		return nil
	}
	switch {
	case len(f.And) > 0:
		and := make([]cetypes.Expression, 0, len(f.And))
		for i := range f.And {
			if e := toExpression(&f.And[i]); e != nil {
				and = append(and, *e)
			}
		}
		return &cetypes.Expression{And: and}
	case f.Dimension != nil:
		return &cetypes.Expression{Dimensions: &cetypes.DimensionValues{
			Key:    cetypes.Dimension(f.Dimension.Key),
			Values: f.Dimension.Values,
		}}
	case f.Tag != nil:
		return &cetypes.Expression{Tags: &cetypes.TagValues{
			Key:    aws.String(f.Tag.Key),
			Values: f.Tag.Values,
		}}
	}
	return nil
}
