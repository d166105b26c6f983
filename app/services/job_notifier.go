package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/amirphl/Yamata-WABA/config"
	"github.com/streadway/amqp"
)

// JobReadyMessage is published when an outbound job becomes claimable
type JobReadyMessage struct {
	JobID   uint   `json:"job_id"`
	JobUUID string `json:"job_uuid"`
}

// JobNotifier wakes send workers. Delivery is best effort; workers still poll.
type JobNotifier interface {
	NotifyJobReady(ctx context.Context, msg JobReadyMessage) error
	// Subscribe streams job-ready messages until ctx is done
	Subscribe(ctx context.Context) (<-chan JobReadyMessage, error)
	Close() error
}

// NoopJobNotifier is used when AMQP is disabled
type NoopJobNotifier struct{}

func (NoopJobNotifier) NotifyJobReady(context.Context, JobReadyMessage) error { return nil }

func (NoopJobNotifier) Subscribe(ctx context.Context) (<-chan JobReadyMessage, error) {
	ch := make(chan JobReadyMessage)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (NoopJobNotifier) Close() error { return nil }

// AMQPJobNotifier publishes job-ready messages on a durable direct exchange
type AMQPJobNotifier struct {
	cfg  config.AMQPConfig
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPJobNotifier dials the broker and declares the exchange, queue and binding
func NewAMQPJobNotifier(cfg config.AMQPConfig) (*AMQPJobNotifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	if err := declareJobTopology(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &AMQPJobNotifier{cfg: cfg, conn: conn, ch: ch}, nil
}

func declareJobTopology(ch *amqp.Channel, cfg config.AMQPConfig) error {
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"direct",     // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	if err := ch.QueueBind(q.Name, cfg.Queue, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", cfg.Queue, err)
	}
	return nil
}

func (n *AMQPJobNotifier) NotifyJobReady(ctx context.Context, msg JobReadyMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.ch.Publish(
		n.cfg.Exchange,
		n.cfg.Queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job %d: %w", msg.JobID, err)
	}
	return nil
}

// Subscribe consumes on a dedicated channel. Malformed bodies are dropped.
func (n *AMQPJobNotifier) Subscribe(ctx context.Context) (<-chan JobReadyMessage, error) {
	ch, err := n.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	deliveries, err := ch.Consume(
		n.cfg.Queue,
		"",
		true, // autoAck: polling stays the source of truth
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	out := make(chan JobReadyMessage)
	go func() {
		defer close(out)
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var msg JobReadyMessage
				if err := json.Unmarshal(d.Body, &msg); err != nil || msg.JobID == 0 {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (n *AMQPJobNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		_ = n.ch.Close()
	}
	return n.conn.Close()
}
