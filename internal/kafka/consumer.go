package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a Kafka consumer over the attendance topics. Each
// instance uses its own group so it sees every event for its SSE clients.
func NewConsumer(brokers []string, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: topics,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes attendance events until ctx is done.
func (c *Consumer) Start(ctx context.Context, handler func(models.AttendanceEvent)) {
	c.logger.Info("KAFKA", "Attendance consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, kafka.ErrGroupClosed) {
				c.logger.Info("KAFKA", "Attendance consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := decodeAttendance(msg.Value)
		if err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal message from %s: %v", msg.Topic, err))
			continue
		}

		c.logger.LogKafka("CONSUME", msg.Topic, fmt.Sprintf("event=%s type=%s", event.EventID, event.Type))
		handler(event)
	}
}

func decodeAttendance(value []byte) (models.AttendanceEvent, error) {
	var event models.AttendanceEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, err
	}
	if event.EventID == "" {
		return event, errors.New("attendance event without eventId")
	}
	return event, nil
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
