// Package notify publishes detected alerts to the operations message
// bus for downstream chat and paging integrations.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/models"
)

const publishTimeout = 5 * time.Second

// Notifier delivers one alert to an external channel and returns the
// delivery's message id.
type Notifier interface {
	SendAlert(ctx context.Context, alert models.AlertEvent) (string, error)
}

// Narrator turns an alert into a short operator-facing summary. The AI
// client satisfies this; it is optional.
type Narrator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// AMQPNotifier publishes alerts to a durable topic exchange. Routing
// keys follow alerts.<severity>.<type> so consumers can bind to just
// the severities they page on.
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	narrator Narrator
	logger   *logging.Logger
}

func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPNotifier{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logging.NewLogger("notify"),
	}, nil
}

// WithNarrator enables AI-written summaries on published alerts.
func (n *AMQPNotifier) WithNarrator(narrator Narrator) *AMQPNotifier {
	n.narrator = narrator
	return n
}

func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}

// alertMessage is the wire envelope for one published alert.
type alertMessage struct {
	MessageID string            `json:"message_id"`
	Narrative string            `json:"narrative,omitempty"`
	Alert     models.AlertEvent `json:"alert"`
}

func (n *AMQPNotifier) SendAlert(ctx context.Context, alert models.AlertEvent) (string, error) {
	msg := alertMessage{
		MessageID: uuid.NewString(),
		Narrative: n.narrate(ctx, alert),
		Alert:     alert,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := routingKey(alert)
	err = n.channel.PublishWithContext(ctx, n.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Timestamp:    alert.DetectedAt,
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("publish alert %s: %w", key, err)
	}

	n.logger.Info("alert published", map[string]interface{}{
		"message_id":  msg.MessageID,
		"routing_key": key,
	})
	return msg.MessageID, nil
}

func routingKey(alert models.AlertEvent) string {
	return fmt.Sprintf("alerts.%s.%s", alert.Severity, alert.Type)
}

const narratorPrompt = "You are an operations assistant for a payment platform. " +
	"Summarize the alert in at most two sentences for an on-call engineer. " +
	"State the affected dimension, the key metric and the most likely area to investigate. Plain text only."

// narrate asks the AI client for a short summary. Narration is best
// effort; a failure never blocks delivery.
func (n *AMQPNotifier) narrate(ctx context.Context, alert models.AlertEvent) string {
	if n.narrator == nil {
		return ""
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return ""
	}
	narrative, err := n.narrator.Complete(ctx, narratorPrompt, string(body))
	if err != nil {
		n.logger.Warn("alert narration failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	return narrative
}

// LogNotifier writes alerts to the structured log instead of a broker.
// Used when no AMQP url is configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logging.NewLogger("notify")}
}

func (n *LogNotifier) SendAlert(_ context.Context, alert models.AlertEvent) (string, error) {
	id := uuid.NewString()
	n.logger.Warn("alert detected", map[string]interface{}{
		"message_id": id,
		"severity":   string(alert.Severity),
		"type":       string(alert.Type),
		"title":      alert.Title,
		"message":    alert.Message,
	})
	return id, nil
}
