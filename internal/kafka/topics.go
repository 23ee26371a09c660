package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/logger"
)

// EnsureTopicsExist creates Kafka topics if they don't already exist
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no Kafka brokers configured")
	}

	// Connect to the first broker to create topics
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	// Create each topic
	for _, topic := range topics {
		topicConfigs := []kafka.TopicConfig{
			{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			},
		}

		err = controllerConn.CreateTopics(topicConfigs...)
		if err != nil {
			if errors.Is(err, kafka.TopicAlreadyExists) {
				log.Debug("KAFKA", fmt.Sprintf("Topic %s already exists", topic))
				continue
			}
			// Continue trying to create other topics even if one fails
			log.Error("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
		} else {
			log.Info("KAFKA", fmt.Sprintf("Created topic: %s", topic))
		}
	}

	// Wait a moment for topics to be fully created
	time.Sleep(1 * time.Second)
	return nil
}

// ListTopics returns a list of all existing topics
func ListTopics(ctx context.Context, brokers []string) ([]string, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no Kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, err
	}

	// Track unique topics
	topicMap := make(map[string]bool)
	for _, p := range partitions {
		topicMap[p.Topic] = true
	}

	var topics []string
	for topic := range topicMap {
		topics = append(topics, topic)
	}
	return topics, nil
}
