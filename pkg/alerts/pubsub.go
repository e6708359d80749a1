package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/segmentio/kafka-go"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes alerts to an SNS topic. The topic is a topic ARN.
type SNSPublisher struct {
	client SNSAPI
	logger *slog.Logger
}

var _ Publisher = (*SNSPublisher)(nil)

// NewSNSPublisher creates an SNS publisher.
func NewSNSPublisher(client SNSAPI, logger *slog.Logger) *SNSPublisher {
	return &SNSPublisher{client: client, logger: logger}
}

func (p *SNSPublisher) Publish(ctx context.Context, topic string, msg []byte, attrs map[string]string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(string(msg)),
	}
	if len(attrs) > 0 {
		input.MessageAttributes = make(map[string]snstypes.MessageAttributeValue, len(attrs))
		for k, v := range attrs {
			input.MessageAttributes[k] = snstypes.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	out, err := p.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	p.logger.Debug("alert published to sns", "topic", topic, "message_id", aws.ToString(out.MessageId))
	return nil
}

// MessageWriter is the subset of kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes alerts to a Kafka topic, keyed by the budgetId
// attribute so alerts for one budget stay ordered.
type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to a comma-separated broker list.
func NewKafkaPublisher(brokers string, writeTimeout time.Duration, logger *slog.Logger) (*KafkaPublisher, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.Info("kafka alert publisher configured",
		"brokers", brokerList,
		"write_timeout", writeTimeout,
	)
	return NewKafkaPublisherWithWriter(writer, logger), nil
}

// NewKafkaPublisherWithWriter creates a publisher around an existing writer.
func NewKafkaPublisherWithWriter(writer MessageWriter, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, msg []byte, attrs map[string]string) error {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(attrs[k])})
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(attrs["budgetId"]),
		Value:   msg,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	p.logger.Debug("alert published to kafka", "topic", topic, "budget_id", attrs["budgetId"])
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
