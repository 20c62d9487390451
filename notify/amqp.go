package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xraph/herald/job"
)

// Publisher is the subset of *amqp.Channel used by AMQPSender.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// amqpMessage is the JSON body published for each delivery.
type amqpMessage struct {
	ID        string       `json:"id"`
	Source    string       `json:"source"`
	Severity  job.Severity `json:"severity"`
	Title     string       `json:"title,omitempty"`
	Message   string       `json:"message"`
	ChannelID string       `json:"channel_id,omitempty"`
	SentAt    time.Time    `json:"sent_at"`
}

// AMQPSender publishes delivery messages to an exchange. The routing key
// is "herald.<severity>".
type AMQPSender struct {
	pub      Publisher
	exchange string
	now      func() time.Time
	close    func() error
}

// NewAMQPSender creates a sender over an existing channel.
func NewAMQPSender(pub Publisher, exchange string) *AMQPSender {
	return &AMQPSender{pub: pub, exchange: exchange, now: time.Now}
}

// DialAMQP connects to url, declares a durable topic exchange and returns
// a sender that owns the connection.
func DialAMQP(url, exchange string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange %q: %w", exchange, err)
	}

	s := NewAMQPSender(ch, exchange)
	s.close = func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return s, nil
}

// Send implements Sender. The receipt is the published message ID.
func (s *AMQPSender) Send(ctx context.Context, msg *job.DeliveryPayload) (string, error) {
	id := uuid.NewString()
	now := s.now().UTC()
	body, err := json.Marshal(amqpMessage{
		ID:        id,
		Source:    msg.Source,
		Severity:  msg.Severity,
		Title:     msg.Title,
		Message:   msg.Message,
		ChannelID: msg.ChannelID,
		SentAt:    now,
	})
	if err != nil {
		return "", fmt.Errorf("notify: encode message: %w", err)
	}

	err = s.pub.PublishWithContext(ctx, s.exchange, "herald."+string(msg.Severity), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("notify: amqp publish: %w", err)
	}
	return id, nil
}

// Close releases the connection opened by DialAMQP. It is a no-op for
// senders built with NewAMQPSender.
func (s *AMQPSender) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
