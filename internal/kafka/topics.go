package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"ms-events/internal/logger"

	"github.com/segmentio/kafka-go"
)

// EnsureTopicsExist creates Kafka topics if they don't already exist
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if errors.Is(err, kafka.TopicAlreadyExists) {
			log.Debug("KAFKA", fmt.Sprintf("Topic %s already exists", topic))
			continue
		}
		if err != nil {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		log.Info("KAFKA", fmt.Sprintf("Created topic: %s", topic))
	}
	return nil
}
