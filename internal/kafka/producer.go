package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// messageWriter is the part of kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Topics maps attendance event types to topics.
type Topics struct {
	TicketScanned string
	EventReset    string
}

type Producer struct {
	Writer  messageWriter
	Topics  Topics
	breaker *gobreaker.CircuitBreaker[interface{}]
	logger  *logger.Logger
}

// BreakerSettings trips after failureThreshold consecutive write failures
// and probes again after timeout.
func BreakerSettings(failureThreshold uint32, timeout time.Duration, log *logger.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("KAFKA", fmt.Sprintf("Circuit breaker %s: %s -> %s", name, from, to))
		},
	}
}

func NewProducer(brokers []string, topics Topics, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return newProducer(writer, topics, BreakerSettings(5, 30*time.Second, log), log)
}

func newProducer(w messageWriter, topics Topics, settings gobreaker.Settings, log *logger.Logger) *Producer {
	return &Producer{
		Writer:  w,
		Topics:  topics,
		breaker: gobreaker.NewCircuitBreaker[interface{}](settings),
		logger:  log,
	}
}

func (p *Producer) topicFor(eventType string) (string, error) {
	switch eventType {
	case models.ScanEventType:
		return p.Topics.TicketScanned, nil
	case models.ResetEventType:
		return p.Topics.EventReset, nil
	}
	return "", fmt.Errorf("no topic for attendance event type %q", eventType)
}

// PublishAttendance streams an attendance event to Kafka, keyed by event id
// so that all updates of one event stay ordered within a partition.
func (p *Producer) PublishAttendance(ctx context.Context, event models.AttendanceEvent) error {
	topic, err := p.topicFor(event.Type)
	if err != nil {
		return err
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.Writer.WriteMessages(ctx, kafka.Message{
			Topic: topic,
			Key:   []byte(event.EventID),
			Value: msgBytes,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("event=%s type=%s", event.EventID, event.Type))
	return nil
}

// BreakerState reports the breaker state (closed, half-open, open) for /health.
func (p *Producer) BreakerState() string {
	return p.breaker.State().String()
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
