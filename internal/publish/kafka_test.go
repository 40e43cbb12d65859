package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/banshee-data/finishline/internal/counting"
)

type fakeProducer struct {
	messages   []*kafka.Message
	produceErr error
	deliverErr error
	remaining  int
	flushed    bool
	closed     bool
}

func (f *fakeProducer) Produce(msg *kafka.Message, ch chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.messages = append(f.messages, msg)
	report := *msg
	report.TopicPartition.Error = f.deliverErr
	ch <- &report
	return nil
}

func (f *fakeProducer) Flush(int) int {
	f.flushed = true
	return f.remaining
}

func (f *fakeProducer) Close() { f.closed = true }

var sample = counting.CrossingEvent{
	RunID:     "run-1",
	ID:        42,
	Timestamp: time.Date(2024, 9, 14, 9, 1, 23, 0, time.UTC),
	Elapsed:   83 * time.Second,
	Label:     "jaune",
	Direction: counting.DirectionUp,
}

func TestPayload(t *testing.T) {
	body, err := Payload(sample)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(body))

	doc := gjson.ParseBytes(body)
	assert.Equal(t, "run-1", doc.Get("run_id").String())
	assert.Equal(t, int64(42), doc.Get("id").Int())
	assert.Equal(t, "2024-09-14T09:01:23Z", doc.Get("timestamp").String())
	assert.Equal(t, int64(83000), doc.Get("elapsed_ms").Int())
	assert.Equal(t, "jaune", doc.Get("label").String())
	assert.Equal(t, "up", doc.Get("direction").String())
}

func TestPublish_KeyAndHeaders(t *testing.T) {
	fp := &fakeProducer{}
	kp := newKafkaPublisher(fp, KafkaConfig{Topic: "crossings"})

	require.NoError(t, kp.Publish(context.Background(), sample))
	require.NoError(t, kp.Close())

	require.Len(t, fp.messages, 1)
	msg := fp.messages[0]
	assert.Equal(t, "crossings", *msg.TopicPartition.Topic)
	assert.Equal(t, []byte("42"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, RunIDHeader, msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "jaune", gjson.GetBytes(msg.Value, "label").String())

	assert.True(t, fp.flushed)
	assert.True(t, fp.closed)
	sent, acked, failed := kp.Stats()
	assert.Equal(t, [3]int64{1, 1, 0}, [3]int64{sent, acked, failed})
}

func TestPublish_DeliveryFailureCounted(t *testing.T) {
	fp := &fakeProducer{deliverErr: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}
	kp := newKafkaPublisher(fp, KafkaConfig{Topic: "crossings"})

	require.NoError(t, kp.Publish(context.Background(), sample))
	require.NoError(t, kp.Close())

	_, acked, failed := kp.Stats()
	assert.Equal(t, int64(0), acked)
	assert.Equal(t, int64(1), failed)
}

func TestPublish_Errors(t *testing.T) {
	fp := &fakeProducer{produceErr: errors.New("queue full")}
	kp := newKafkaPublisher(fp, KafkaConfig{Topic: "crossings"})

	err := kp.Publish(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, kp.Publish(ctx, sample), context.Canceled)

	require.NoError(t, kp.Close())
	assert.ErrorIs(t, kp.Publish(context.Background(), sample), ErrClosed)
	assert.NoError(t, kp.Close())
}

func TestClose_ReportsUnflushed(t *testing.T) {
	fp := &fakeProducer{remaining: 3}
	kp := newKafkaPublisher(fp, KafkaConfig{Topic: "crossings"})
	err := kp.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 messages")
}

func TestNewKafkaPublisher_RequiresTopic(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Brokers: "localhost:9092"})
	assert.Error(t, err)
}
