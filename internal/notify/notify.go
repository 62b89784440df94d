// Package notify delivers user-facing notifications over MQTT.
//
// Notifications are published as JSON on graylogic/notify; phone and
// desktop agents subscribed to that topic present them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// ErrEmptyNotification is returned when both title and body are blank.
var ErrEmptyNotification = errors.New("notify: title and body are empty")

// Publisher is the MQTT publishing surface the Notifier needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the Notifier.
type Logger interface {
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}

// Message is the published notification payload.
type Message struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier publishes notifications. It implements automation.Notifier.
type Notifier struct {
	pub    Publisher
	topic  string
	logger Logger
	now    func() time.Time
}

// New creates a Notifier publishing through pub.
func New(pub Publisher, logger Logger) *Notifier {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Notifier{pub: pub, topic: mqtt.Topics{}.Notify(), logger: logger, now: time.Now}
}

// Send publishes one notification with QoS 1.
func (n *Notifier) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if title == "" && body == "" {
		return ErrEmptyNotification
	}

	msg := Message{ID: uuid.NewString(), Title: title, Body: body, Timestamp: n.now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := n.pub.Publish(n.topic, payload, 1, false); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}

	n.logger.Info("notification sent", "id", msg.ID, "title", title)
	return nil
}
