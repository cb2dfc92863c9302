package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConnector dials the first reachable broker, declares topic through
// the cluster controller and returns an asynchronous writer for it.
func KafkaConnector(brokers []string, replicationFactor int) ConnectFunc {
	return func(ctx context.Context, topic string, completion func([]kafka.Message, error)) (MessageWriter, error) {
		if err := declareTopic(ctx, brokers, topic, replicationFactor); err != nil {
			return nil, err
		}

		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 100 * time.Millisecond,
			Async:        true,
			Completion:   completion,
		}, nil
	}
}

func declareTopic(ctx context.Context, brokers []string, topic string, replicationFactor int) error {
	var errs []error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("dial %s: %w", addr, err))
			continue
		}
		err = createTopic(ctx, conn, topic, replicationFactor)
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func createTopic(ctx context.Context, conn *kafka.Conn, topic string, replicationFactor int) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}

	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer func() { _ = ctrl.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = ctrl.SetDeadline(deadline)
	}

	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: replicationFactor,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("declare topic %s: %w", topic, err)
	}
	return nil
}
