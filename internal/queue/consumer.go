package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/filmgraph/backend/pkg/logger"
)

// Handler processes the body of one delivery.
type Handler func(ctx context.Context, body []byte) error

// Publisher is the part of *amqp091.Channel used to move failed deliveries.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type queuedMessage struct {
	msg       amqp.Delivery
	queueName string
}

// Consume delivers messages of every queue in handlers to a single
// processor, one at a time, until ctx is cancelled. consumerCh should have a
// prefetch of 1.
func Consume(ctx context.Context, consumerCh *amqp.Channel, handlers map[string]Handler) error {
	messageChan := make(chan queuedMessage)

	for queueName := range handlers {
		consumerTag := fmt.Sprintf("%s_consumer", queueName)
		msgs, err := consumerCh.Consume(
			queueName,
			consumerTag,
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to start consuming %s: %w", queueName, err)
		}

		go func(qName string, msgs <-chan amqp.Delivery) {
			for {
				select {
				case <-ctx.Done():
					logger.Info("[Queue] Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("[Queue] Message channel closed", "queue", qName)
						return
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: qName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(queueName, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping message processor")
			return nil
		case qm := <-messageChan:
			Dispatch(ctx, consumerCh, handlers, qm.msg, qm.queueName)
			logger.Info("[Queue] Waiting for next message")
		}
	}
}

// Dispatch runs the handler of queueName and acknowledges the delivery, or
// hands it to HandleProcessingError when the handler fails.
func Dispatch(ctx context.Context, pub Publisher, handlers map[string]Handler, msg amqp.Delivery, queueName string) {
	startTime := time.Now()
	logger.Info("[Queue] Received message", "queue", queueName)

	var processingErr error
	if h, ok := handlers[queueName]; ok {
		processingErr = h(ctx, msg.Body)
	} else {
		processingErr = fmt.Errorf("no handler for queue %s", queueName)
	}

	if processingErr != nil {
		logger.Error("[Queue] Error processing message", "queue", queueName, "err", processingErr)
		HandleProcessingError(pub, msg, queueName)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info("[Queue] Message processed successfully", "queue", queueName, "duration", time.Since(startTime).Round(time.Millisecond))
}

// HandleProcessingError republishes a failed delivery to the retry queue of
// queueName, or to its dead letter queue once it was retried maxRetries
// times. The original delivery is acknowledged after a successful publish
// and requeued otherwise.
func HandleProcessingError(pub Publisher, msg amqp.Delivery, queueName string) {
	retries := retryCount(msg.Headers)

	if retries >= maxRetries {
		dlqName := queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName)
		pubErr := pub.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: msg.ContentType,
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := pub.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: msg.ContentType,
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func retryCount(headers amqp.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
