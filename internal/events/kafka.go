package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Client holds the broker list parsed from KAFKA_BROKERS
type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *Client) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
}

// messageWriter is the part of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by order ID
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(c *Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: c.NewWriter(topic)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	return PublishJSON(ctx, p.writer, e.Key(), e)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// PublishJSON marshals payload and writes it under key
func PublishJSON(ctx context.Context, w messageWriter, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()})
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// log publisher otherwise.
func NewPublisher(brokersCSV, topic string) Publisher {
	c := NewClient(brokersCSV)
	if !c.Enabled() {
		return LogPublisher{}
	}
	return NewKafkaPublisher(c, topic)
}
