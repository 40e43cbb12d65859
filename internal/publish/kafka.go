// Package publish streams crossing events to Kafka.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/tidwall/sjson"

	"github.com/banshee-data/finishline/internal/counting"
	"github.com/banshee-data/finishline/internal/monitoring"
)

const (
	// RunIDHeader carries the run a crossing belongs to.
	RunIDHeader = "run_id"

	defaultFlushTimeout = 10 * time.Second
)

var ErrClosed = errors.New("publisher closed")

// KafkaConfig selects the cluster and topic crossings are produced to.
type KafkaConfig struct {
	Brokers      string
	Topic        string
	ClientID     string
	FlushTimeout time.Duration
}

// producer is the subset of *kafka.Producer the publisher drives.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher produces one message per crossing, keyed by object ID.
type KafkaPublisher struct {
	producer     producer
	topic        string
	flushTimeout time.Duration
	deliveries   chan kafka.Event
	wg           sync.WaitGroup

	closed atomic.Bool
	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64
}

// NewKafkaPublisher connects to cfg.Brokers.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if cfg.Brokers == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "finishline"
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"client.id":          clientID,
		"acks":               "all",
		"enable.idempotence": true,
		"linger.ms":          20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	monitoring.Opsf("[publish] kafka producer ready: topic=%s brokers=%s", cfg.Topic, cfg.Brokers)
	return newKafkaPublisher(p, cfg), nil
}

func newKafkaPublisher(p producer, cfg KafkaConfig) *KafkaPublisher {
	timeout := cfg.FlushTimeout
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	kp := &KafkaPublisher{
		producer:     p,
		topic:        cfg.Topic,
		flushTimeout: timeout,
		deliveries:   make(chan kafka.Event, 1000),
	}
	kp.wg.Add(1)
	go kp.drainDeliveries()
	return kp
}

func (kp *KafkaPublisher) drainDeliveries() {
	defer kp.wg.Done()
	for e := range kp.deliveries {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			kp.failed.Add(1)
			monitoring.Opsf("[publish] delivery failed for key %s: %v", m.Key, m.TopicPartition.Error)
			continue
		}
		kp.acked.Add(1)
	}
}

// Payload renders ev as the JSON message body.
func Payload(ev counting.CrossingEvent) ([]byte, error) {
	fields := []struct {
		path  string
		value interface{}
	}{
		{"run_id", ev.RunID},
		{"id", ev.ID},
		{"timestamp", ev.Timestamp.UTC().Format(time.RFC3339Nano)},
		{"elapsed_ms", ev.Elapsed.Milliseconds()},
		{"label", ev.Label},
		{"direction", ev.Direction},
	}
	body := []byte(`{}`)
	for _, f := range fields {
		var err error
		body, err = sjson.SetBytes(body, f.path, f.value)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", f.path, err)
		}
	}
	return body, nil
}

// Publish queues ev for delivery. Delivery failures are counted and logged
// asynchronously.
func (kp *KafkaPublisher) Publish(ctx context.Context, ev counting.CrossingEvent) error {
	if kp.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := Payload(ev)
	if err != nil {
		return err
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &kp.topic, Partition: kafka.PartitionAny},
		Key:            []byte(strconv.FormatInt(ev.ID, 10)),
		Value:          body,
		Timestamp:      ev.Timestamp,
		Headers:        []kafka.Header{{Key: RunIDHeader, Value: []byte(ev.RunID)}},
	}
	if err := kp.producer.Produce(msg, kp.deliveries); err != nil {
		kp.failed.Add(1)
		return fmt.Errorf("produce crossing %d: %w", ev.ID, err)
	}
	kp.sent.Add(1)
	return nil
}

// Stats returns sent, acknowledged and failed message counts.
func (kp *KafkaPublisher) Stats() (sent, acked, failed int64) {
	return kp.sent.Load(), kp.acked.Load(), kp.failed.Load()
}

// Close flushes queued messages and shuts the producer down. Close is
// idempotent.
func (kp *KafkaPublisher) Close() error {
	if kp.closed.Swap(true) {
		return nil
	}
	remaining := kp.producer.Flush(int(kp.flushTimeout.Milliseconds()))
	kp.producer.Close()
	close(kp.deliveries)
	kp.wg.Wait()

	sent, acked, failed := kp.Stats()
	monitoring.Opsf("[publish] closed: sent=%d acked=%d failed=%d", sent, acked, failed)
	if remaining > 0 {
		return fmt.Errorf("%d messages still queued after flush", remaining)
	}
	return nil
}
