package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"auction-engine/utils"
)

// publisher is the part of *amqp.Channel used to publish
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPQueue publishes requests to a topic exchange for cmd/notifier to deliver
type AMQPQueue struct {
	ch         publisher
	exchange   string
	routingKey string
}

// NewAMQPQueue creates a queue publishing on ch
func NewAMQPQueue(ch publisher, exchange, routingKey string) *AMQPQueue {
	return &AMQPQueue{ch: ch, exchange: exchange, routingKey: routingKey}
}

// Enqueue publishes req; failures are logged and dropped
func (q *AMQPQueue) Enqueue(ctx context.Context, req Request) {
	body, err := json.Marshal(req)
	if err != nil {
		utils.Error("failed to encode notification", map[string]any{"user_id": req.UserID, "error": err.Error()})
		return
	}

	err = q.ch.PublishWithContext(context.WithoutCancel(ctx), q.exchange, q.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		utils.Error("failed to publish notification", map[string]any{
			"user_id":  req.UserID,
			"exchange": q.exchange,
			"error":    err.Error(),
		})
	}
}

// Connect dials url, opens a channel and declares the notification topology on it
func Connect(url, exchange, queue, routingKey string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("notification: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("notification: open channel: %w", err)
	}
	if err := Setup(ch, exchange, queue, routingKey); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("notification: %w", err)
	}
	return conn, ch, nil
}

// Setup declares a durable topic exchange and a durable queue bound to it
func Setup(ch *amqp.Channel, exchange, queue, routingKey string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}
	return nil
}

// Consumer delivers queued requests through a Dispatcher
type Consumer struct {
	dispatcher *Dispatcher
	timeout    time.Duration
}

// NewConsumer creates a consumer that gives each delivery up to timeout
func NewConsumer(d *Dispatcher, timeout time.Duration) *Consumer {
	return &Consumer{dispatcher: d, timeout: timeout}
}

// Run consumes queue until ctx is done or the delivery channel closes
func (c *Consumer) Run(ctx context.Context, ch *amqp.Channel, queue string) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	utils.Info("started consuming notifications", map[string]any{"queue": queue})
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			c.Handle(ctx, msg)
		}
	}
}

// Handle dispatches one delivery and acks it. Notifications are never
// retried, so undecodable and failed deliveries are acked too.
func (c *Consumer) Handle(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if err := msg.Ack(false); err != nil {
			utils.Warn("failed to ack notification", map[string]any{"error": err.Error()})
		}
	}()

	var req Request
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		utils.Error("dropping malformed notification", map[string]any{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		utils.Warn("dropping notification without recipient", nil)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.dispatcher.NotifyUser(ctx, req)
}
