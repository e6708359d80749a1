package alerts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/alerts"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var testAttrs = map[string]string{
	"alertType": "BUDGET_EXCEEDED",
	"severity":  "CRITICAL",
	"budgetId":  "b-9",
}

func TestSNSPublisher_Publish(t *testing.T) {
	fake := &fakeSNS{}
	p := alerts.NewSNSPublisher(fake, testLogger())

	arn := "arn:aws:sns:us-east-1:123456789012:budget-alerts"
	require.NoError(t, p.Publish(context.Background(), arn, []byte(`{"budget_id":"b-9"}`), testAttrs))

	assert.Equal(t, arn, aws.ToString(fake.input.TopicArn))
	assert.Equal(t, `{"budget_id":"b-9"}`, aws.ToString(fake.input.Message))
	require.Len(t, fake.input.MessageAttributes, 3)
	sev := fake.input.MessageAttributes["severity"]
	assert.Equal(t, "String", aws.ToString(sev.DataType))
	assert.Equal(t, "CRITICAL", aws.ToString(sev.StringValue))
}

func TestSNSPublisher_Error(t *testing.T) {
	p := alerts.NewSNSPublisher(&fakeSNS{err: errors.New("auth error")}, testLogger())
	err := p.Publish(context.Background(), "arn", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth error")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := alerts.NewKafkaPublisherWithWriter(w, testLogger())

	require.NoError(t, p.Publish(context.Background(), "budget-alerts", []byte("{}"), testAttrs))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "budget-alerts", msg.Topic)
	assert.Equal(t, []byte("b-9"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "alertType", msg.Headers[0].Key)
	assert.Equal(t, "budgetId", msg.Headers[1].Key)
	assert.Equal(t, []byte("CRITICAL"), msg.Headers[2].Value)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Error(t *testing.T) {
	p := alerts.NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("leader not available")}, testLogger())
	assert.Error(t, p.Publish(context.Background(), "t", nil, testAttrs))
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := alerts.NewKafkaPublisher("", 0, testLogger())
	assert.Error(t, err)

	p, err := alerts.NewKafkaPublisher("localhost:9092, localhost:9093", 0, testLogger())
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
