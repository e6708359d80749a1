package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/budgets"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/internal/config"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/costsource"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/storage"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/tracker"
)

// pipeline is a fully wired alert processor and the resources behind it.
type pipeline struct {
	processor *tracker.AlertProcessor
	reporter  *tracker.CostReporter
	native    costsource.NativeBudgetSource
	closers   []func() error
}

func (p *pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// loadAWS resolves credentials from the default chain, honoring the
// configured region and profile.
func loadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	if cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// newNativeSource returns the AWS Budgets source, or nil when native budgets
// are disabled.
func newNativeSource(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) costsource.NativeBudgetSource {
	if !cfg.NativeBudgets.Enabled {
		return nil
	}
	return costsource.NewAWSBudgets(budgets.NewFromConfig(awsCfg), sts.NewFromConfig(awsCfg), cfg.AWS.AccountID, logger)
}

func newCostReporter(cfg *config.Config, costs costsource.CostSource, native costsource.NativeBudgetSource, logger *slog.Logger) *tracker.CostReporter {
	return tracker.NewCostReporter(costs, native, tracker.ReportConfig{
		FallbackBudget: cfg.CostReport.MonthlyBudget,
		QueryTimeout:   config.Duration(cfg.CostSource.Timeout, tracker.DefaultQueryTimeout),
	}, logger)
}

func newMailer(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) alerts.Mailer {
	switch cfg.Notifications.Email.Provider {
	case "ses":
		return alerts.NewSESMailer(sesv2.NewFromConfig(awsCfg), logger)
	case "resend":
		return alerts.NewResendMailer(cfg.Notifications.Email.ResendAPIKey, logger)
	default:
		return nil
	}
}

func newPublisher(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (alerts.Publisher, func() error, error) {
	ps := cfg.Notifications.PubSub
	switch ps.Provider {
	case "sns":
		return alerts.NewSNSPublisher(sns.NewFromConfig(awsCfg), logger), nil, nil
	case "kafka":
		p, err := alerts.NewKafkaPublisher(ps.Brokers, config.Duration(ps.WriteTimeout, 0), logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return nil, nil, nil
	}
}

// newPipeline wires the alert processor from config.
func newPipeline(ctx context.Context, cfg *config.Config, store storage.Storage, logger *slog.Logger) (*pipeline, error) {
	awsCfg, err := loadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}

	vocab := costsource.DefaultServiceVocabulary()
	if path := cfg.CostSource.ServicesFile; path != "" {
		if vocab, err = costsource.LoadServiceVocabulary(path); err != nil {
			return nil, err
		}
	}

	p := &pipeline{native: newNativeSource(cfg, awsCfg, logger)}
	costs := costsource.NewCostExplorer(costexplorer.NewFromConfig(awsCfg), logger)
	p.reporter = newCostReporter(cfg, costs, p.native, logger)

	aggregator := tracker.NewBudgetAggregator(
		store,
		costs,
		p.native,
		tracker.AggregatorConfig{
			NativeOwner:  cfg.NativeBudgets.Owner,
			Vocabulary:   vocab,
			Concurrency:  cfg.CostSource.Concurrency,
			QueryTimeout: config.Duration(cfg.CostSource.Timeout, tracker.DefaultQueryTimeout),
		},
		logger,
	)

	publisher, closePublisher, err := newPublisher(cfg, awsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init pubsub: %w", err)
	}
	if closePublisher != nil {
		p.closers = append(p.closers, closePublisher)
	}

	notifyTimeout := config.Duration(cfg.Notifications.Timeout, alerts.DefaultHTTPTimeout)
	dispatcher := alerts.NewDispatcher(
		alerts.DispatcherConfig{
			DefaultRecipient: cfg.Notifications.DefaultRecipient,
			From:             cfg.Notifications.Email.From,
			PubSubTopic:      cfg.Notifications.PubSub.Topic,
			Timeout:          notifyTimeout,
		},
		newMailer(cfg, awsCfg, logger),
		publisher,
		alerts.NewHTTPPoster(cfg.Notifications.Chat.Secret, notifyTimeout),
		logger,
	)

	p.processor = tracker.NewAlertProcessor(
		aggregator,
		tracker.NewAlertEngine(store, logger),
		dispatcher,
		store,
		store,
		tracker.ProcessorConfig{DispatchConcurrency: cfg.Processor.DispatchConcurrency},
		logger,
	)
	return p, nil
}
