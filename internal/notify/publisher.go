package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier dispatches one record-change notification. Implementations
// must return the error instead of swallowing it: a write whose
// notification failed is reported to the client as a failure even
// though the row is already persisted.
type Notifier interface {
	Notify(ctx context.Context, entity, recordID, operation, userID string) error
}

// AMQPNotifier publishes RecordTouchedEvents to the record.touched
// queue. It dials per publish, which keeps the publisher stateless and
// lets the broker connection recover for free between requests.
type AMQPNotifier struct {
	url string
}

func NewAMQPNotifier(url string) *AMQPNotifier {
	return &AMQPNotifier{url: url}
}

func (n *AMQPNotifier) Notify(ctx context.Context, entity, recordID, operation, userID string) error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		log.Printf("notify: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("notify: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("notify: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(RecordTouchedEvent{
		Entity:     entity,
		RecordID:   recordID,
		Operation:  operation,
		UserID:     userID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Printf("notify: publish failed: %v", err)
		return err
	}
	return nil
}
